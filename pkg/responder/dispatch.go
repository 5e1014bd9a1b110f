// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package responder

import "github.com/Thermoquad/dmxbridge/pkg/rdm"

// IsRootOnlyPID reports whether a PID is administrative and only
// answered at the root. Section 6.3 of E1.20 gives no NACK for these;
// requests addressed to a sub-device are silently dropped.
func IsRootOnlyPID(pid rdm.PID) bool {
	switch pid {
	case rdm.PIDDiscUniqueBranch, rdm.PIDDiscMute, rdm.PIDDiscUnMute,
		rdm.PIDSupportedParameters, rdm.PIDParameterDescription,
		rdm.PIDDeviceInfo, rdm.PIDSoftwareVersionLabel,
		rdm.PIDDMXStartAddress, rdm.PIDIdentifyDevice:
		return true
	}
	return false
}

// Dispatch routes a validated RDM request to the responder's PID table
// and returns the staged reply length in out, NoResponse, or
// DUBResponse. The caller has already routed sub-device addressing to
// the right responder handle.
func (r *Responder) Dispatch(h *rdm.Header, paramData []byte, out []byte) int {
	if h.CommandClass == rdm.DiscoveryCommand {
		return r.handleDiscovery(h, paramData, out)
	}

	if h.SubDevice != rdm.SubDeviceRoot && IsRootOnlyPID(h.ParamID) {
		return NoResponse
	}

	for i := range r.def.Descriptors {
		d := &r.def.Descriptors[i]
		if d.PID != h.ParamID {
			continue
		}
		if h.CommandClass == rdm.GetCommand {
			if !h.DestUID.IsUnicast() {
				return NoResponse
			}
			if d.GetHandler == nil {
				return r.nack(h, rdm.NRUnsupportedCommandClass, out)
			}
			if h.ParamDataLength != d.GetParamSize {
				return r.nack(h, rdm.NRFormatError, out)
			}
			return d.GetHandler(r, h, paramData, out)
		}
		if d.SetHandler == nil {
			return r.nack(h, rdm.NRUnsupportedCommandClass, out)
		}
		return d.SetHandler(r, h, paramData, out)
	}
	return r.nack(h, rdm.NRUnknownPID, out)
}

// handleDiscovery covers the three discovery PIDs. Discovery commands
// addressed to a sub-device are silently dropped; the standard gives no
// way to NACK them.
func (r *Responder) handleDiscovery(h *rdm.Header, paramData []byte, out []byte) int {
	if h.SubDevice != rdm.SubDeviceRoot {
		return NoResponse
	}
	switch h.ParamID {
	case rdm.PIDDiscUniqueBranch:
		return r.handleDUBRequest(paramData, out)
	case rdm.PIDDiscMute:
		return r.setMute(h, out)
	case rdm.PIDDiscUnMute:
		return r.setUnMute(h, out)
	}
	return NoResponse
}
