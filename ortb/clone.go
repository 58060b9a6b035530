package ortb

import (
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidflare/exchange-core/util/ptrutil"
)

// CloneBidRequestPartial performs a deep copy of the request fields the auction
// mutates per bidder (user, device, source). All other fields remain shared
// with the original request and must be treated as read only.
func CloneBidRequestPartial(s *openrtb2.BidRequest) *openrtb2.BidRequest {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.User = CloneUser(s.User)
	c.Device = CloneDevice(s.Device)
	c.Source = CloneSource(s.Source)

	return &c
}

func CloneSite(s *openrtb2.Site) *openrtb2.Site {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Cat = cloneSlice(s.Cat)
	c.SectionCat = cloneSlice(s.SectionCat)
	c.PageCat = cloneSlice(s.PageCat)
	c.Publisher = ClonePublisher(s.Publisher)
	c.Content = CloneContent(s.Content)
	c.KwArray = cloneSlice(s.KwArray)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneApp(s *openrtb2.App) *openrtb2.App {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Cat = cloneSlice(s.Cat)
	c.SectionCat = cloneSlice(s.SectionCat)
	c.PageCat = cloneSlice(s.PageCat)
	c.Publisher = ClonePublisher(s.Publisher)
	c.Content = CloneContent(s.Content)
	c.KwArray = cloneSlice(s.KwArray)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneDOOH(s *openrtb2.DOOH) *openrtb2.DOOH {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.VenueType = cloneSlice(s.VenueType)
	c.VenueTypeTax = ptrutil.Clone(s.VenueTypeTax)
	c.Publisher = ClonePublisher(s.Publisher)
	c.Content = CloneContent(s.Content)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func ClonePublisher(s *openrtb2.Publisher) *openrtb2.Publisher {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Cat = cloneSlice(s.Cat)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneContent(s *openrtb2.Content) *openrtb2.Content {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Producer = CloneProducer(s.Producer)
	c.Cat = cloneSlice(s.Cat)
	c.ProdQ = ptrutil.Clone(s.ProdQ)
	c.VideoQuality = ptrutil.Clone(s.VideoQuality)
	c.KwArray = cloneSlice(s.KwArray)
	c.Data = CloneDataSlice(s.Data)
	c.Network = CloneNetwork(s.Network)
	c.Channel = CloneChannel(s.Channel)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneProducer(s *openrtb2.Producer) *openrtb2.Producer {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Cat = cloneSlice(s.Cat)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneDataSlice(s []openrtb2.Data) []openrtb2.Data {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.Data, len(s))
	for i, d := range s {
		c[i] = CloneData(d)
	}

	return c
}

func CloneData(s openrtb2.Data) openrtb2.Data {
	// Shallow Copy (Value Fields)
	// - Already occurred implicitly in the method call.

	// Deep Copy (Pointers)
	s.Segment = CloneSegmentSlice(s.Segment)
	s.Ext = cloneSlice(s.Ext)

	return s
}

func CloneSegmentSlice(s []openrtb2.Segment) []openrtb2.Segment {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.Segment, len(s))
	for i, d := range s {
		c[i] = CloneSegment(d)
	}

	return c
}

func CloneSegment(s openrtb2.Segment) openrtb2.Segment {
	// Shallow Copy (Value Fields)
	// - Already occurred implicitly in the method call.

	// Deep Copy (Pointers)
	s.Ext = cloneSlice(s.Ext)

	return s
}

func CloneNetwork(s *openrtb2.Network) *openrtb2.Network {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneChannel(s *openrtb2.Channel) *openrtb2.Channel {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneUser(s *openrtb2.User) *openrtb2.User {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.KwArray = cloneSlice(s.KwArray)
	c.Geo = CloneGeo(s.Geo)
	c.Data = CloneDataSlice(s.Data)
	c.EIDs = CloneEIDSlice(s.EIDs)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneDevice(s *openrtb2.Device) *openrtb2.Device {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Geo = CloneGeo(s.Geo)
	c.DNT = ptrutil.Clone(s.DNT)
	c.Lmt = ptrutil.Clone(s.Lmt)
	c.SUA = CloneUserAgent(s.SUA)
	c.JS = ptrutil.Clone(s.JS)
	c.GeoFetch = ptrutil.Clone(s.GeoFetch)
	c.ConnectionType = ptrutil.Clone(s.ConnectionType)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneUserAgent(s *openrtb2.UserAgent) *openrtb2.UserAgent {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Browsers = CloneBrandVersionSlice(s.Browsers)
	c.Platform = CloneBrandVersion(s.Platform)
	c.Mobile = ptrutil.Clone(s.Mobile)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneBrandVersionSlice(s []openrtb2.BrandVersion) []openrtb2.BrandVersion {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.BrandVersion, len(s))
	for i, d := range s {
		bv := CloneBrandVersion(&d)
		c[i] = *bv
	}

	return c
}

func CloneBrandVersion(s *openrtb2.BrandVersion) *openrtb2.BrandVersion {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Version = cloneSlice(s.Version)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneGeo(s *openrtb2.Geo) *openrtb2.Geo {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Lat = ptrutil.Clone(s.Lat)
	c.Lon = ptrutil.Clone(s.Lon)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneEIDSlice(s []openrtb2.EID) []openrtb2.EID {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.EID, len(s))
	for i, d := range s {
		c[i] = CloneEID(d)
	}

	return c
}

func CloneEID(s openrtb2.EID) openrtb2.EID {
	// Shallow Copy (Value Fields)
	// - Already occurred implicitly in the method call.

	// Deep Copy (Pointers)
	s.UIDs = CloneUIDSlice(s.UIDs)
	s.Ext = cloneSlice(s.Ext)

	return s
}

func CloneUIDSlice(s []openrtb2.UID) []openrtb2.UID {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.UID, len(s))
	for i, d := range s {
		c[i] = CloneUID(d)
	}

	return c
}

func CloneUID(s openrtb2.UID) openrtb2.UID {
	// Shallow Copy (Value Fields)
	// - Already occurred implicitly in the method call.

	// Deep Copy (Pointers)
	s.Ext = cloneSlice(s.Ext)

	return s
}

func CloneSource(s *openrtb2.Source) *openrtb2.Source {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.FD = ptrutil.Clone(s.FD)
	c.SChain = CloneSupplyChain(s.SChain)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneSupplyChain(s *openrtb2.SupplyChain) *openrtb2.SupplyChain {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Nodes = CloneSupplyChainNodes(s.Nodes)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneSupplyChainNodes(s []openrtb2.SupplyChainNode) []openrtb2.SupplyChainNode {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.SupplyChainNode, len(s))
	for i, d := range s {
		c[i] = CloneSupplyChainNode(d)
	}

	return c
}

func CloneSupplyChainNode(s openrtb2.SupplyChainNode) openrtb2.SupplyChainNode {
	// Shallow Copy (Value Fields)
	// - Already occurred implicitly in the method call.

	// Deep Copy (Pointers)
	s.HP = ptrutil.Clone(s.HP)
	s.Ext = cloneSlice(s.Ext)

	return s
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}

	c := make([]T, len(s))
	copy(c, s)

	return c
}
