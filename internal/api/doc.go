// Package api serves rrdcore over HTTP and WebSocket.
//
// Routes live under /api/v1. Health, metrics and token issue are public;
// everything under /rrd needs a Bearer JWT from POST /auth/token. The
// WebSocket endpoint takes the same token as a query parameter and pushes
// rrd.created and rrd.updated events to subscribed clients.
//
//	srv, err := api.New(deps)
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Close()
package api
