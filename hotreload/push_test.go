package hotreload

import "testing"

func TestPushHubBroadcastWithNoClientsIsNoop(t *testing.T) {
	h := NewPushHub()
	// Must not panic with zero connected clients.
	h.Broadcast(PatchLoadedNotification{Path: "/tmp/p.so", Symbols: []string{"user/a"}})
}
