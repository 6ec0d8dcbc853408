// Package signaling implements the WebSocket relay that lets room members
// exchange WebRTC offers, answers and ICE candidates.
//
// The relay never interprets signaling payloads; it routes the original frame
// bytes to the named target and keeps room membership in sync with connection
// lifetimes.
package signaling
