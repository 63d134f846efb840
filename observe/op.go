package observe

// Op describes one authorization operation for telemetry purposes.
type Op struct {
	// Component is the emitting component, e.g. "cache" or "verifier".
	Component string

	// Name is the operation, e.g. "exchange" or "verify_access". Required.
	Name string

	// Audience is the target resource, when the operation has one.
	Audience string
}

// SpanName returns the deterministic span name for this operation.
// Format: agentauth.<component>.<name> or agentauth.<name>
func (o Op) SpanName() string {
	if o.Component != "" {
		return "agentauth." + o.Component + "." + o.Name
	}
	return "agentauth." + o.Name
}

// ID returns the qualified operation identifier.
func (o Op) ID() string {
	if o.Component != "" {
		return o.Component + "." + o.Name
	}
	return o.Name
}

// Validate reports whether the operation can be recorded.
func (o Op) Validate() error {
	if o.Name == "" {
		return ErrMissingOpName
	}
	return nil
}
