package ortb

import (
	"encoding/json"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidflare/exchange-core/util/ptrutil"
)

func TestCloneBidRequestPartial(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, CloneBidRequestPartial(nil))
	})

	t.Run("mutations do not leak back", func(t *testing.T) {
		original := &openrtb2.BidRequest{
			ID: "req",
			User: &openrtb2.User{
				BuyerUID: "buyer",
				Geo:      &openrtb2.Geo{Lat: ptrutil.ToPtr(1.5), Lon: ptrutil.ToPtr(2.5)},
				EIDs: []openrtb2.EID{
					{Source: "source.com", UIDs: []openrtb2.UID{{ID: "uid1"}}},
				},
				Ext: json.RawMessage(`{"consent":"abc"}`),
			},
			Device: &openrtb2.Device{
				IP:  "1.2.3.4",
				Lmt: ptrutil.ToPtr[int8](0),
				Geo: &openrtb2.Geo{Lat: ptrutil.ToPtr(1.5)},
				SUA: &openrtb2.UserAgent{
					Browsers: []openrtb2.BrandVersion{{Brand: "Chrome", Version: []string{"120"}}},
					Mobile:   ptrutil.ToPtr[int8](1),
				},
			},
			Source: &openrtb2.Source{
				TID: "tid",
				SChain: &openrtb2.SupplyChain{
					Ver:   "1.0",
					Nodes: []openrtb2.SupplyChainNode{{ASI: "a.com", HP: ptrutil.ToPtr[int8](1)}},
				},
			},
		}

		clone := CloneBidRequestPartial(original)
		require.Equal(t, original, clone)

		clone.User.BuyerUID = "other"
		*clone.User.Geo.Lat = 9.9
		clone.User.EIDs[0].UIDs[0].ID = "uid2"
		clone.Device.IP = "5.6.7.8"
		*clone.Device.Lmt = 1
		clone.Device.SUA.Browsers[0].Version[0] = "121"
		clone.Source.TID = "tid2"
		clone.Source.SChain.Nodes[0].ASI = "b.com"
		*clone.Source.SChain.Nodes[0].HP = 0

		assert.Equal(t, "buyer", original.User.BuyerUID)
		assert.Equal(t, 1.5, *original.User.Geo.Lat)
		assert.Equal(t, "uid1", original.User.EIDs[0].UIDs[0].ID)
		assert.Equal(t, "1.2.3.4", original.Device.IP)
		assert.Equal(t, int8(0), *original.Device.Lmt)
		assert.Equal(t, "120", original.Device.SUA.Browsers[0].Version[0])
		assert.Equal(t, "tid", original.Source.TID)
		assert.Equal(t, "a.com", original.Source.SChain.Nodes[0].ASI)
		assert.Equal(t, int8(1), *original.Source.SChain.Nodes[0].HP)
	})
}

func TestCloneContent(t *testing.T) {
	assert.Nil(t, CloneContent(nil))

	original := &openrtb2.Content{
		Title: "title",
		Data: []openrtb2.Data{
			{ID: "d1", Segment: []openrtb2.Segment{{ID: "s1"}}},
		},
		Producer: &openrtb2.Producer{Name: "prod", Cat: []string{"IAB1"}},
	}

	clone := CloneContent(original)
	require.Equal(t, original, clone)

	clone.Data[0].Segment[0].ID = "s2"
	clone.Producer.Cat[0] = "IAB2"

	assert.Equal(t, "s1", original.Data[0].Segment[0].ID)
	assert.Equal(t, "IAB1", original.Producer.Cat[0])
}

func TestCloneSiteAppDOOH(t *testing.T) {
	site := &openrtb2.Site{ID: "s", Cat: []string{"IAB1"}, Publisher: &openrtb2.Publisher{ID: "p"}}
	siteClone := CloneSite(site)
	siteClone.Cat[0] = "IAB2"
	siteClone.Publisher.ID = "p2"
	assert.Equal(t, "IAB1", site.Cat[0])
	assert.Equal(t, "p", site.Publisher.ID)

	app := &openrtb2.App{ID: "a", PageCat: []string{"IAB3"}}
	appClone := CloneApp(app)
	appClone.PageCat[0] = "IAB4"
	assert.Equal(t, "IAB3", app.PageCat[0])

	dooh := &openrtb2.DOOH{ID: "d", VenueType: []string{"airport"}}
	doohClone := CloneDOOH(dooh)
	doohClone.VenueType[0] = "mall"
	assert.Equal(t, "airport", dooh.VenueType[0])
}
