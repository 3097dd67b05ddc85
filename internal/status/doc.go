package status

// Package status maintains the persistent websocket subscription to the
// server's task status push channel: connection supervision, frame decoding,
// listener dispatch, and the deferred full-snapshot request that is safe to
// issue before the handshake completes.
