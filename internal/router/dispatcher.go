package router

import (
	"context"
	"fmt"
)

// Router dispatches a Request to the handler for its resolved intent.
type Router struct {
	handlers map[Intent]IntentHandler
}

// NewRouter builds a Router from the explicit per-intent handler set.
func NewRouter(handlers map[Intent]IntentHandler) *Router {
	return &Router{handlers: handlers}
}

// Dispatch resolves the request's intent (auto included) and runs its
// handler, enforcing the soft per-call timeout.
func (r *Router) Dispatch(ctx context.Context, root string, req Request) (Response, error) {
	intent := req.Intent
	if intent == "" || intent == IntentAuto {
		intent = ResolveIntent(req)
	}

	handler, ok := r.handlers[intent]
	if !ok {
		return Response{}, fmt.Errorf("invalid_request: no handler registered for intent %q", intent)
	}

	ctx, cancel := context.WithTimeout(ctx, ClampTimeout(req.TimeoutMS))
	defer cancel()

	resp, err := handler.Handle(ctx, root, req)
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}
