package cli

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/joouha/termview/pkg/cache"
	"github.com/joouha/termview/pkg/config"
	"github.com/joouha/termview/pkg/convert"
	"github.com/joouha/termview/pkg/graphics"
)

// app bundles the pieces every command needs: the loaded config, a
// converter registry wired to the configured cache backend, and the
// detected terminal.
type app struct {
	cfg   config.Config
	reg   *convert.Registry
	term  graphics.Terminal
	store cache.Cache
}

// newApp loads configuration and builds the registry. The caller must call
// close when done so cache backends release their resources.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	term := graphics.DetectTerminal()
	if cfg.Graphics.CellWidth > 0 && cfg.Graphics.CellHeight > 0 {
		term.CellWidth = cfg.Graphics.CellWidth
		term.CellHeight = cfg.Graphics.CellHeight
	}
	if cfg.Graphics.Force {
		term.Passthrough = true
	}

	var store cache.Cache
	switch cfg.Cache.Backend {
	case "", "none":
	case "redis":
		store, err = cache.NewRedisCache(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
		if err != nil {
			return nil, err
		}
	default:
		dir, err := cfg.CacheDir()
		if err != nil {
			return nil, err
		}
		store, err = cache.NewFileCache(dir)
		if err != nil {
			return nil, err
		}
	}

	opts := []convert.Option{
		convert.WithLogger(loggerFromContext(ctx)),
		convert.WithCellPixelSize(term.CellWidth, term.CellHeight),
	}
	if store != nil {
		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		opts = append(opts, convert.WithPersistentCache(store, ttl))
	}

	reg := convert.NewRegistry(opts...)
	convert.RegisterBuiltins(reg)

	return &app{cfg: cfg, reg: reg, term: term, store: store}, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

// sniffFormat guesses a file's format tag from its extension, falling back
// to content sniffing for raster images.
func sniffFormat(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	case ".svg":
		return "svg"
	case ".md", ".markdown":
		return "markdown"
	case ".sixel", ".six":
		return "sixel"
	case ".ans", ".ansi", ".txt":
		return "ansi"
	}

	switch http.DetectContentType(data) {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpeg"
	case "image/gif":
		return "gif"
	}
	if strings.Contains(string(data[:min(len(data), 512)]), "<svg") {
		return "svg"
	}
	return "ansi"
}
