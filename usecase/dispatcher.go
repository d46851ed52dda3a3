package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
)

// Command is one workflow action submitted by an actor.
type Command struct {
	Name    string
	Actor   domain.Actor
	Payload json.RawMessage
}

// Query is a read keyed by an incidencia id.
type Query struct {
	Name   string
	Actor  domain.Actor
	ID     string
	Params map[string]string
}

type CommandHandler func(ctx context.Context, cmd Command) (id string, data interface{}, err error)
type QueryHandler func(ctx context.Context, q Query) (interface{}, error)

type Dispatcher struct {
	cmdHandlers map[string]CommandHandler
	qryHandlers map[string]QueryHandler
	mu          sync.RWMutex
	logger      *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cmdHandlers: make(map[string]CommandHandler),
		qryHandlers: make(map[string]QueryHandler),
		logger:      logger,
	}
}

func (d *Dispatcher) RegisterCommand(name string, handler CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmdHandlers[name] = handler
}

func (d *Dispatcher) RegisterQuery(name string, handler QueryHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.qryHandlers[name] = handler
}

// ExecuteCommand runs a registered command and folds the outcome into a
// Result. Panics are converted into an INTERNAL result.
func (d *Dispatcher) ExecuteCommand(ctx context.Context, cmd Command) (result domain.Result) {
	d.mu.RLock()
	handler, ok := d.cmdHandlers[cmd.Name]
	d.mu.RUnlock()
	if !ok {
		return domain.NewResult("", nil, domain.NewError(domain.ErrCodeNotFound, fmt.Sprintf("acción %s no registrada", cmd.Name)))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panicked",
				zap.String("accion", cmd.Name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = domain.NewResult("", nil, domain.NewError(domain.ErrCodeInternal, fmt.Sprintf("error interno en %s", cmd.Name)))
		}
	}()

	id, data, err := handler(ctx, cmd)
	if err != nil {
		d.logFailure(cmd, err)
	}
	return domain.NewResult(id, data, err)
}

// logFailure keeps the full cause, which NewResult strips from the Result.
func (d *Dispatcher) logFailure(cmd Command, err error) {
	fields := []zap.Field{
		zap.String("accion", cmd.Name),
		zap.String("persona_id", cmd.Actor.PersonaID),
		zap.String("code", string(domain.CodeOf(err))),
		zap.Error(err),
	}
	switch domain.CodeOf(err) {
	case domain.ErrCodeTransient, domain.ErrCodeInternal:
		d.logger.Error("command failed", fields...)
	default:
		d.logger.Debug("command rejected", fields...)
	}
}

func (d *Dispatcher) ExecuteQuery(ctx context.Context, q Query) (interface{}, error) {
	d.mu.RLock()
	handler, ok := d.qryHandlers[q.Name]
	d.mu.RUnlock()
	if !ok {
		return nil, domain.NewError(domain.ErrCodeNotFound, fmt.Sprintf("consulta %s no registrada", q.Name))
	}
	return handler(ctx, q)
}

// Commands lists the registered command names.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.cmdHandlers))
	for name := range d.cmdHandlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
