// Package nat implements NAT reachability detection,
// pairwise connection-quality comparison, and future-host election
// for ring topologies. DetectQuality probes UPnP (SSDP; NAT-PMP is not
// probed) first, falls
// back to a STUN binding request via github.com/pion/stun/v3, and
// reduces the result to the 0..4 tier CompareQuality/ElectFutureHost
// operate on.
package nat

import (
	"context"
	"net"
	"time"

	"github.com/pion/stun/v3"

	"github.com/ascii-chat/acip-core/internal/logx"
)

var log = logx.For("nat")

// Type classifies the NAT a participant sits behind.
type Type int

const (
	TypeUnknown Type = iota
	TypeOpen
	TypeFullCone
	TypeRestricted
	TypePortRestricted
	TypeSymmetric
)

func (t Type) String() string {
	switch t {
	case TypeOpen:
		return "open"
	case TypeFullCone:
		return "full-cone"
	case TypeRestricted:
		return "restricted"
	case TypePortRestricted:
		return "port-restricted"
	case TypeSymmetric:
		return "symmetric"
	default:
		return "unknown"
	}
}

// CandidateKind is one bit of the ICE candidate-type bitmap.
type CandidateKind uint8

const (
	CandidateHost            CandidateKind = 1 << 0
	CandidateServerReflexive CandidateKind = 1 << 1
	CandidateRelay           CandidateKind = 1 << 2
)

// Quality summarizes one participant's reachability for comparison
// and future-host election.
type Quality struct {
	LANReachable  bool
	PublicIP      bool
	UPnPAvailable bool
	MappedPort    uint16

	NATType Type
	STUNRTT time.Duration

	UploadBps   uint64
	DownloadBps uint64

	ACDSRTT       time.Duration
	Jitter        time.Duration
	PacketLossPct float64

	Candidates CandidateKind

	Tier int
}

// computeTier ranks reachability: 0 if LAN-reachable, 1 public IP,
// 2 UPnP, 3 NAT at or better than restricted, 4 otherwise.
func (q *Quality) computeTier() {
	switch {
	case q.LANReachable:
		q.Tier = 0
	case q.PublicIP:
		q.Tier = 1
	case q.UPnPAvailable:
		q.Tier = 2
	case q.NATType == TypeOpen || q.NATType == TypeFullCone || q.NATType == TypeRestricted:
		q.Tier = 3
	default:
		q.Tier = 4
	}
}

// privateIPBlocks are the RFC-1918 ranges plus loopback and
// link-local, used to decide whether a reflexive address counts as
// public.
var privateIPBlocks = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}()

func isPrivateIP(ip net.IP) bool {
	for _, n := range privateIPBlocks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// localAddresses returns every non-loopback IP bound to this host, to
// let DetectQuality decide whether its local port is itself already
// LAN-reachable.
func localAddresses() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []net.IP
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && !ip.IsLoopback() {
			ips = append(ips, ip)
		}
	}
	return ips
}

// DetectQuality runs the probe sequence: a UPnP SSDP probe first (there
// is no NAT-PMP probe), then (if
// still no public address and a STUN server is configured) a STUN
// binding request, then tier computation.
func DetectQuality(ctx context.Context, localPort uint16, stunServer string) (*Quality, error) {
	q := &Quality{NATType: TypeUnknown}

	for _, ip := range localAddresses() {
		if !isPrivateIP(ip) {
			q.LANReachable = true
			break
		}
	}

	if mappedPort, ok := probeUPnP(ctx, localPort); ok {
		q.UPnPAvailable = true
		q.MappedPort = mappedPort
		q.Candidates |= CandidateHost
	}

	if !q.PublicIP && stunServer != "" {
		reflexive, rtt, err := probeSTUN(ctx, localPort, stunServer)
		if err != nil {
			log.WithError(err).Debug("stun probe failed")
		} else {
			q.STUNRTT = rtt
			q.Candidates |= CandidateServerReflexive
			q.NATType = classifyFromReflexive(reflexive, localAddresses())
			if q.NATType == TypeOpen {
				q.PublicIP = true
			}
		}
	}

	q.computeTier()
	observeTier(q.Tier)
	if q.STUNRTT > 0 {
		observeSTUNRTT(q.STUNRTT)
	}
	return q, nil
}

// classifyFromReflexive classifies NAT type from a STUN-observed
// reflexive address.
func classifyFromReflexive(reflexive *net.UDPAddr, locals []net.IP) Type {
	if reflexive == nil {
		return TypeSymmetric
	}
	for _, local := range locals {
		if local.Equal(reflexive.IP) {
			return TypeOpen
		}
	}
	if !isPrivateIP(reflexive.IP) {
		return TypeOpen
	}
	return TypeSymmetric
}

// probeSTUN sends a single STUN BINDING request over UDP to server and
// parses XOR-MAPPED-ADDRESS from the response.
func probeSTUN(ctx context.Context, localPort uint16, server string) (*net.UDPAddr, time.Duration, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(localPort)})
	if err != nil {
		return nil, 0, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(3 * time.Second))
	}

	serverAddr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, 0, err
	}

	msg, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	if _, err := conn.WriteToUDP(msg.Raw, serverAddr); err != nil {
		return nil, 0, err
	}

	buf := make([]byte, 1500)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, 0, err
	}
	rtt := time.Since(start)

	reply := &stun.Message{Raw: buf[:n]}
	if err := reply.Decode(); err != nil {
		return nil, 0, err
	}

	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(reply); err != nil {
		return nil, rtt, err
	}

	return &net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}, rtt, nil
}
