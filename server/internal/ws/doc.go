// Package ws implements the WebSocket hub for churn-server.
//
// Hub manages a set of connected clients and broadcasts the current churn
// snapshot to all of them on a fixed interval, and immediately after Notify
// (the server calls it whenever a batch is accepted).
//
// Message format sent to clients:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy. The server mounts the hub at /ws/stream behind the API key
// middleware; browsers pass the key as the api_key query parameter.
package ws
