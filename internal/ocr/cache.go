package ocr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adverant/nexus/bharatdoc-worker/internal/logging"
)

// EngineFactory builds an engine for a language code.
type EngineFactory func(language string) (Engine, error)

// CacheConfig holds engine cache configuration.
type CacheConfig struct {
	Factory            EngineFactory
	SupportedLanguages []string
	DefaultLanguage    string
}

type cachedEngine struct {
	mu     sync.Mutex
	engine Engine
}

// Cache lazily creates one engine per language and reuses it. Engines are
// expensive to initialize and are not safe for concurrent use, so every
// engine is guarded by its own lock.
type Cache struct {
	mu        sync.Mutex
	factory   EngineFactory
	supported map[string]bool
	fallback  string
	engines   map[string]*cachedEngine
	logger    *logging.Logger
}

// NewCache creates an empty engine cache.
func NewCache(cfg *CacheConfig) (*Cache, error) {
	if cfg == nil || cfg.Factory == nil {
		return nil, fmt.Errorf("engine factory is required")
	}

	fallback := cfg.DefaultLanguage
	if fallback == "" {
		fallback = "en"
	}

	supported := map[string]bool{fallback: true}
	for _, lang := range cfg.SupportedLanguages {
		supported[lang] = true
	}

	return &Cache{
		factory:   cfg.Factory,
		supported: supported,
		fallback:  fallback,
		engines:   make(map[string]*cachedEngine),
		logger:    logging.NewLogger("OCRCache"),
	}, nil
}

// NewTesseractCache returns a cache of Tesseract engines.
func NewTesseractCache(languages []string, defaultLanguage, tessdataPrefix string, dpi int) (*Cache, error) {
	return NewCache(&CacheConfig{
		SupportedLanguages: languages,
		DefaultLanguage:    defaultLanguage,
		Factory: func(language string) (Engine, error) {
			return NewTesseractEngine(&TesseractConfig{
				Language:       language,
				TessdataPrefix: tessdataPrefix,
				DPI:            dpi,
			})
		},
	})
}

// Resolve maps a requested language to one the cache supports.
func (c *Cache) Resolve(language string) string {
	if c.supported[language] {
		return language
	}
	return c.fallback
}

func (c *Cache) get(language string) (*cachedEngine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ce, ok := c.engines[language]; ok {
		return ce, nil
	}

	c.logger.Info("Initializing OCR engine", "language", language)
	engine, err := c.factory(language)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OCR engine for %s: %w", language, err)
	}

	ce := &cachedEngine{engine: engine}
	c.engines[language] = ce
	return ce, nil
}

// Recognize runs OCR with the engine for language, creating it on first use.
func (c *Cache) Recognize(ctx context.Context, language string, image []byte) ([]Line, error) {
	ce, err := c.get(c.Resolve(language))
	if err != nil {
		return nil, err
	}

	ce.mu.Lock()
	defer ce.mu.Unlock()
	return ce.engine.Recognize(ctx, image)
}

// Len returns the number of initialized engines.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.engines)
}

// Close releases every cached engine.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for lang, ce := range c.engines {
		ce.mu.Lock()
		if err := ce.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s engine: %w", lang, err))
		}
		ce.mu.Unlock()
		delete(c.engines, lang)
	}
	return errors.Join(errs...)
}
