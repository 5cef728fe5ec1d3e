package bridge

import "sync"

// PermissionMode decides how capabilities are granted.
type PermissionMode string

const (
	PermissionGrant  PermissionMode = "grant"
	PermissionDeny   PermissionMode = "deny"
	PermissionPrompt PermissionMode = "prompt"
)

// permissions is read by the print worker as well, so it has its own lock.
type permissions struct {
	mode PermissionMode

	mu      sync.Mutex
	answers map[string]bool
}

func newPermissions(mode PermissionMode) *permissions {
	if mode == "" {
		mode = PermissionGrant
	}
	return &permissions{mode: mode, answers: make(map[string]bool)}
}

func (p *permissions) granted(capability string) bool {
	switch p.mode {
	case PermissionGrant:
		return true
	case PermissionDeny:
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answers[capability]
}

func (p *permissions) record(capability string, granted bool) {
	if p.mode != PermissionPrompt {
		return
	}
	p.mu.Lock()
	p.answers[capability] = granted
	p.mu.Unlock()
}

// requestPermission must run on the dispatcher.
func (b *Bridge) requestPermission(capability string) {
	switch {
	case b.perms.mode == PermissionPrompt && b.prompter != nil:
		b.log.Info("requesting permission", "capability", capability)
		b.prompter.RequestPermission(capability)
	case b.perms.mode == PermissionGrant:
		b.resolvePermission(capability, true)
	default:
		b.resolvePermission(capability, false)
	}
}

// OnPermissionResult delivers the user's answer to a permission request.
func (b *Bridge) OnPermissionResult(capability string, granted bool) {
	b.perms.record(capability, granted)
	b.post(func() { b.resolvePermission(capability, granted) })
}

func (b *Bridge) resolvePermission(capability string, granted bool) {
	b.log.Info("permission result", "capability", capability, "granted", granted)

	switch capability {
	case CapabilityBluetooth:
		id := b.pending
		b.pending = ""
		if !granted {
			b.notify(msgPermissionDenied)
			return
		}
		if id != "" {
			b.submit(id)
		}

	case CapabilityMicrophone:
		start := b.speechPending
		b.speechPending = false
		switch {
		case granted && start:
			b.startTranscription()
		case granted:
			b.log.Debug("microphone granted with no transcription waiting")
		default:
			b.speechResult(nil, true, "permission_denied")
		}

	default:
		b.log.Warn("permission result for unknown capability", "capability", capability)
	}
}
