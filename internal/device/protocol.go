package device

import (
	"bytes"
	"net"

	"github.com/bysshe/cirrostratus/internal/aoeproto"
)

// BadArg builds the AoE BADARG response for an unrecognized command or
// malformed tail addressed to this device (§4.6), counting it against
// proto_err.
func (d *Device) BadArg(localMAC, srcMAC net.HardwareAddr, tag uint32) *aoeproto.Frame {
	d.protoErr.Add(1)
	return d.errorFrame(srcMAC, localMAC, tag, aoeproto.ErrBadArg)
}

// SimpleATAAck builds an immediate READY response carrying no payload, for
// ATA commands this server completes without touching the backend (FLUSH
// CACHE, CHECK POWER MODE).
func (d *Device) SimpleATAAck(localMAC, srcMAC net.HardwareAddr, tag uint32) *aoeproto.Frame {
	hdr := d.replyHeader(tag)
	return &aoeproto.Frame{
		Dst:    srcMAC,
		Src:    localMAC,
		Header: hdr,
		ATA:    aoeproto.ATATail{CmdStat: aoeproto.ATAStatusReady},
	}
}

// HandleConfig implements the CONFIG command's five sub-commands (§4.6). A
// nil return means the request is silently dropped (a failed TEST/TEST
// PREFIX match, per the AoE convention of never replying to a failed test).
func (d *Device) HandleConfig(localMAC, srcMAC net.HardwareAddr, tag uint32, tail aoeproto.ConfigTail, str []byte) *aoeproto.Frame {
	reply := func(payload []byte) *aoeproto.Frame {
		hdr := d.replyHeader(tag)
		hdr.Command = aoeproto.CmdConfig
		return &aoeproto.Frame{
			Dst:          srcMAC,
			Src:          localMAC,
			Header:       hdr,
			Config:       tail,
			ConfigString: payload,
		}
	}

	switch tail.SubCommand() {
	case aoeproto.ConfigRead:
		return reply(d.configString)

	case aoeproto.ConfigTest:
		if !bytes.Equal(d.configString, str) {
			return nil
		}
		return reply(d.configString)

	case aoeproto.ConfigTestPrefix:
		if !bytes.HasPrefix(d.configString, str) {
			return nil
		}
		return reply(d.configString)

	case aoeproto.ConfigSet:
		if len(d.configString) > 0 {
			return d.errorFrame(srcMAC, localMAC, tag, aoeproto.ErrConfigRequired)
		}
		d.SetConfigString(str)
		return reply(d.configString)

	case aoeproto.ConfigForceSet:
		d.SetConfigString(str)
		return reply(d.configString)

	default:
		d.protoErr.Add(1)
		return d.errorFrame(srcMAC, localMAC, tag, aoeproto.ErrBadArg)
	}
}

// HandleMACMask implements the MAC-mask command's list/add/delete/force
// sub-commands (§4.6) against the device's Accept map.
func (d *Device) HandleMACMask(localMAC, srcMAC net.HardwareAddr, tag uint32, editCmd uint8) *aoeproto.Frame {
	hdr := d.replyHeader(tag)
	hdr.Command = aoeproto.CmdMACMask
	return &aoeproto.Frame{
		Dst:    srcMAC,
		Src:    localMAC,
		Header: hdr,
		MACs:   d.Accept.Addrs(),
	}
}

// ApplyMACMaskEdit mutates the Accept map per the MAC-mask sub-command
// before the caller builds the list reply via HandleMACMask. Add rejects
// duplicates silently (Map.Insert already no-ops on a repeat); delete
// tolerates absence; force clears the map before adding the given entries.
func (d *Device) ApplyMACMaskEdit(editCmd uint8, macs []net.HardwareAddr) {
	switch editCmd {
	case aoeproto.MACMaskAdd:
		for _, m := range macs {
			_ = d.Accept.Insert(m)
		}
	case aoeproto.MACMaskDelete:
		for _, m := range macs {
			d.Accept.Remove(m)
		}
	case aoeproto.MACMaskForce:
		d.Accept.Clear()
		for _, m := range macs {
			_ = d.Accept.Insert(m)
		}
	case aoeproto.MACMaskRead:
		// no mutation
	}
}

// HandleReserve implements the reserve/release command (§4.6): an empty MAC
// list is a read of the current reservation (ReserveGet); a non-empty list
// attempts to replace it (ReserveSet), rejected with RESCONFLICT unless the
// list is currently empty or the issuer is already a member.
func (d *Device) HandleReserve(localMAC, srcMAC net.HardwareAddr, tag uint32, macs []net.HardwareAddr) *aoeproto.Frame {
	if len(macs) > 0 {
		if !d.SetReservation(srcMAC, macs, false) {
			return d.errorFrame(srcMAC, localMAC, tag, aoeproto.ErrResConflict)
		}
	}

	hdr := d.replyHeader(tag)
	hdr.Command = aoeproto.CmdReserve
	return &aoeproto.Frame{
		Dst:    srcMAC,
		Src:    localMAC,
		Header: hdr,
		MACs:   d.Reservation(),
	}
}
