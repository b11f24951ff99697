package permbroker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// doomLoopThreshold is the number of identical consecutive calls that
// triggers the advisory annotation.
const doomLoopThreshold = 3

// doomLoopDetector tracks repeated tool calls within one broker process
// (one per session) to flag likely infinite loops. Unlike the in-process
// Checker the teacher used this for, the broker's detector never changes
// the allow/deny outcome — it only adds a warning line to the prompt post,
// because a separate process has no way to share a stronger signal (like
// aborting the run) back into the main bridge.
type doomLoopDetector struct {
	mu      sync.Mutex
	history []string
}

func newDoomLoopDetector() *doomLoopDetector {
	return &doomLoopDetector{}
}

// Check records one call and reports whether it is the Nth consecutive
// identical call.
func (d *doomLoopDetector) Check(toolName string, input any) bool {
	hash := hashCall(toolName, input)

	d.mu.Lock()
	defer d.mu.Unlock()

	isLoop := false
	if len(d.history) >= doomLoopThreshold-1 {
		allSame := true
		start := len(d.history) - (doomLoopThreshold - 1)
		for i := start; i < len(d.history); i++ {
			if d.history[i] != hash {
				allSame = false
				break
			}
		}
		isLoop = allSame
	}

	d.history = append(d.history, hash)
	if len(d.history) > 10 {
		d.history = d.history[len(d.history)-10:]
	}
	return isLoop
}

func hashCall(toolName string, input any) string {
	data, _ := json.Marshal(map[string]any{"tool": toolName, "input": input})
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
