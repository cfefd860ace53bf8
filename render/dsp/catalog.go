package dsp

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/render/graph"
)

// Catalog is the default stage catalog for the render engine.
//
// It is an explicit registry passed into the engine at construction,
// never process-wide state. Custom factories may be registered over the
// defaults, and kinds may be removed to simulate a smaller element set.
type Catalog struct {
	mu        sync.RWMutex
	factories map[graph.StageKind]func() graph.Stage
}

// NewCatalog creates a catalog with every built-in stage registered.
func NewCatalog() *Catalog {
	c := &Catalog{factories: make(map[graph.StageKind]func() graph.Stage)}
	c.Register(graph.KindRateConvert, func() graph.Stage { return NewRateConverter() })
	c.Register(graph.KindBitConvert, func() graph.Stage { return NewBitConverter() })
	c.Register(graph.KindChannelConvert, func() graph.Stage { return NewChannelConverter() })
	c.Register(graph.KindALC, func() graph.Stage { return NewALC() })
	c.Register(graph.KindSonic, func() graph.Stage { return NewSonic() })
	c.Register(graph.KindEQ, func() graph.Stage { return NewEQ() })
	c.Register(graph.KindFade, func() graph.Stage { return NewFade() })
	c.Register(graph.KindEncode, func() graph.Stage { return NewBlockEncoder() })

	logrus.WithFields(logrus.Fields{
		"function": "dsp.NewCatalog",
		"kinds":    len(c.factories),
	}).Debug("Default stage catalog created")

	return c
}

// Register installs a factory for kind, replacing any existing one.
func (c *Catalog) Register(kind graph.StageKind, factory func() graph.Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[kind] = factory
}

// Unregister removes the factory for kind.
func (c *Catalog) Unregister(kind graph.StageKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.factories, kind)
}

// Create returns a fresh, unopened stage of the given kind.
func (c *Catalog) Create(kind graph.StageKind) (graph.Stage, error) {
	c.mu.RLock()
	factory, ok := c.factories[kind]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrNotFound, kind)
	}
	return factory(), nil
}
