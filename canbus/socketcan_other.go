//go:build !linux

package canbus

// SocketCAN only exists on linux. Open falls through to the virtual bus
// when OpenAllowVirtual is set, which keeps development on other
// platforms possible.
func openSocketCAN(ifname string, flags OpenFlag) (Channel, error) {
	return nil, ERR_NOT_SUPPORTED
}

func configureDevice(ifname string, rate Datarate) error {
	return ERR_NOT_SUPPORTED
}
