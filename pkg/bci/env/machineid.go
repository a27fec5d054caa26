package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const appID = "openbci"

// MachineID retrieves an ID identifying the machine. The raw machine id is
// hashed with the application id so it is safe to publish.
func MachineID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		if host, err := os.Hostname(); err == nil && host != "" {
			return host
		}
		return appID
	}
	if len(id) > 16 {
		id = id[:16]
	}
	return id
}
