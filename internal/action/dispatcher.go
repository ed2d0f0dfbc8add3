package action

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/facewatch/facewatch/internal/expression"
	"github.com/facewatch/facewatch/internal/store"
)

// BindingSource looks up the enabled bindings for an expression label.
type BindingSource interface {
	ListByExpression(expression string) ([]*store.Binding, error)
}

// PluginSource resolves a plugin by name.
type PluginSource interface {
	Get(name string) (*Plugin, error)
}

// Dispatcher runs the plugins bound to an expression when it starts.
type Dispatcher struct {
	bindings BindingSource
	plugins  PluginSource
	exec     *Executor
	log      *logrus.Entry
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(bindings BindingSource, plugins PluginSource, exec *Executor, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		bindings: bindings,
		plugins:  plugins,
		exec:     exec,
		log:      logger.WithField("component", "dispatcher"),
	}
}

// Dispatch starts the bound actions for label in the background and returns
// the number started. Lookup failures are logged, not returned, so a broken
// binding never stalls the frame loop.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, label expression.Label, sample expression.Sample) int {
	bindings, err := d.bindings.ListByExpression(string(label))
	if err != nil {
		d.log.WithError(err).WithField("expression", label).Error("list bindings")
		return 0
	}

	started := 0
	for _, b := range bindings {
		entry := d.log.WithFields(logrus.Fields{
			"expression": label,
			"binding":    b.ID,
			"plugin":     b.PluginName,
			"action":     b.ActionName,
		})

		plugin, err := d.plugins.Get(b.PluginName)
		if err != nil {
			if errors.Is(err, ErrPluginNotFound) {
				entry.Warn("bound plugin is not installed")
			} else {
				entry.WithError(err).Error("resolve plugin")
			}
			continue
		}
		if !plugin.Manifest.Supports(b.ActionName) {
			entry.Warn("plugin does not support bound action")
			continue
		}

		req := &Request{
			Action:     b.ActionName,
			Expression: string(label),
			SessionID:  sessionID,
			Config:     b.Config,
			Sample:     sample.Wire(),
		}

		started++
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()

			resp, err := d.exec.Execute(ctx, plugin, req)
			if err != nil {
				entry.WithError(err).Error("action failed")
				return
			}
			if !resp.Success {
				entry.WithField("error", resp.Error).Warn("plugin reported failure")
				return
			}
			entry.Debug("action executed")
		}()
	}

	return started
}

// Wait blocks until all dispatched actions have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
