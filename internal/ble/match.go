package ble

import (
	"bytes"
	"time"

	"github.com/Aquilesorei/talon/internal/scale"
)

type Filter struct {
	LocalName            string
	CompanyID            uint16 // 0 accepts any company
	ManufacturerDataPref []byte
}

func (f Filter) restrictsPayload() bool {
	return f.CompanyID != 0 || len(f.ManufacturerDataPref) > 0
}

type mfgBlock struct {
	companyID uint16
	data      []byte
}

// advert is the part of a scan result the scanner looks at.
type advert struct {
	address   string
	rssi      int16
	localName string
	mfg       []mfgBlock
}

// match turns an advert into an AdvertisementEvent. The payload is the first
// manufacturer data block accepted by the filter. Adverts without manufacturer
// data still match when the filter does not restrict the payload, so that
// silent senders show up as discovery candidates.
func match(f Filter, a advert, seenAt time.Time) (scale.AdvertisementEvent, bool) {
	if f.LocalName != "" && a.localName != f.LocalName {
		return scale.AdvertisementEvent{}, false
	}

	ev := scale.AdvertisementEvent{
		SenderID:       a.address,
		Name:           a.localName,
		SignalStrength: int(a.rssi),
		Timestamp:      seenAt,
	}
	for _, md := range a.mfg {
		if f.CompanyID != 0 && md.companyID != f.CompanyID {
			continue
		}
		if !bytes.HasPrefix(md.data, f.ManufacturerDataPref) {
			continue
		}
		ev.Payload = append([]byte(nil), md.data...)
		return ev, true
	}
	if f.restrictsPayload() {
		return scale.AdvertisementEvent{}, false
	}
	return ev, true
}
