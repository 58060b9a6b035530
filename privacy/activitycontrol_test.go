package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bidflare/exchange-core/config"
	"github.com/bidflare/exchange-core/util/ptrutil"
)

func TestNewActivityControl(t *testing.T) {
	testCases := []struct {
		name            string
		privacyConf     *config.AccountPrivacy
		activity        Activity
		target          Component
		activityAllowed bool
	}{
		{
			name:            "nil config defaults to allow",
			privacyConf:     nil,
			activity:        ActivityFetchBids,
			target:          Component{Type: ComponentTypeBidder, Name: "bidderA"},
			activityAllowed: true,
		},
		{
			name: "empty activities default to allow",
			privacyConf: &config.AccountPrivacy{
				AllowActivities: &config.AllowActivities{},
			},
			activity:        ActivityTransmitUserFPD,
			target:          Component{Type: ComponentTypeBidder, Name: "bidderA"},
			activityAllowed: true,
		},
		{
			name: "default false denies",
			privacyConf: &config.AccountPrivacy{
				AllowActivities: &config.AllowActivities{
					TransmitUserFPD: config.Activity{Default: ptrutil.ToPtr(false)},
				},
			},
			activity:        ActivityTransmitUserFPD,
			target:          Component{Type: ComponentTypeBidder, Name: "bidderA"},
			activityAllowed: false,
		},
		{
			name: "deny rule matches bidder by name",
			privacyConf: &config.AccountPrivacy{
				AllowActivities: &config.AllowActivities{
					FetchBids: config.Activity{
						Rules: []config.ActivityRule{
							{
								Allow:     false,
								Condition: config.ActivityCondition{ComponentName: []string{"bidderA"}},
							},
						},
					},
				},
			},
			activity:        ActivityFetchBids,
			target:          Component{Type: ComponentTypeBidder, Name: "bidderA"},
			activityAllowed: false,
		},
		{
			name: "deny rule abstains for other bidder",
			privacyConf: &config.AccountPrivacy{
				AllowActivities: &config.AllowActivities{
					FetchBids: config.Activity{
						Rules: []config.ActivityRule{
							{
								Allow:     false,
								Condition: config.ActivityCondition{ComponentName: []string{"bidderA"}},
							},
						},
					},
				},
			},
			activity:        ActivityFetchBids,
			target:          Component{Type: ComponentTypeBidder, Name: "bidderB"},
			activityAllowed: true,
		},
		{
			name: "rule matches component type case insensitive",
			privacyConf: &config.AccountPrivacy{
				AllowActivities: &config.AllowActivities{
					TransmitPreciseGeo: config.Activity{
						Rules: []config.ActivityRule{
							{
								Allow:     false,
								Condition: config.ActivityCondition{ComponentType: []string{"Bidder"}},
							},
						},
					},
				},
			},
			activity:        ActivityTransmitPreciseGeo,
			target:          Component{Type: ComponentTypeBidder, Name: "bidderA"},
			activityAllowed: false,
		},
		{
			name: "first matching rule wins",
			privacyConf: &config.AccountPrivacy{
				AllowActivities: &config.AllowActivities{
					TransmitTIDs: config.Activity{
						Rules: []config.ActivityRule{
							{
								Allow:     true,
								Condition: config.ActivityCondition{ComponentName: []string{"bidderA"}},
							},
							{
								Allow: false,
							},
						},
					},
				},
			},
			activity:        ActivityTransmitTIDs,
			target:          Component{Type: ComponentTypeBidder, Name: "bidderA"},
			activityAllowed: true,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			ac := NewActivityControl(test.privacyConf)
			assert.Equal(t, test.activityAllowed, ac.Allow(test.activity, test.target))
		})
	}
}
