package stage

// Health is the readiness of one pipeline stage as reported by
// `juicenet check`. Detail names the missing tool or setting when the stage
// cannot run.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy reports a stage that would fail before touching any release.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}
