package discovery

import "strings"

// mDNS service types announced by Dyson devices.
const (
	ServiceFan     = "_dyson_mqtt._tcp"
	ServiceVacuum  = "_360eye_mqtt._tcp"
	DefaultDomain  = "local."
	eyeInstanceTag = "360EYE-"
)

// Services lists every service type a Resolver browses.
func Services() []string {
	return []string{ServiceFan, ServiceVacuum}
}

// SerialFromInstance extracts the device serial from an mDNS instance name.
// Fans announce "<type>_<serial>", vacuums "360EYE-<serial>".
func SerialFromInstance(instance string) string {
	name := instance
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '_'); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimPrefix(name, eyeInstanceTag)
}
