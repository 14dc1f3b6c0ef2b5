package runspace

// SecurityEventCallback receives security-relevant events: rejected
// credentials ("auth_failed") and runspaces that could not be released
// ("runspace_leaked").
type SecurityEventCallback func(event string, details map[string]any)

// SetSecurityEventCallback sets the callback for security events.
func (m *Manager) SetSecurityEventCallback(callback SecurityEventCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.securityCallback = callback
}

// emitSecurityEvent invokes the security callback if set.
func (m *Manager) emitSecurityEvent(event string, details map[string]any) {
	m.mu.RLock()
	cb := m.securityCallback
	m.mu.RUnlock()
	if cb != nil {
		cb(event, details)
	}
}
