package firstpartydata

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidflare/exchange-core/errortypes"
	"github.com/bidflare/exchange-core/openrtb_ext"
	"github.com/bidflare/exchange-core/util/jsonutil"
)

const (
	siteKey = "site"
	appKey  = "app"
	doohKey = "dooh"
	userKey = "user"
	dataKey = "data"

	userDataKey        = "userData"
	appContentDataKey  = "appContentData"
	siteContentDataKey = "siteContentData"
	doohContentDataKey = "doohContentData"

	wildcard = "*"
)

// ResolvedFirstPartyData is the first party data merged for one bidder.
type ResolvedFirstPartyData struct {
	Site *openrtb2.Site
	App  *openrtb2.App
	DOOH *openrtb2.DOOH
	User *openrtb2.User
}

// ExtractGlobalFPD collects {site,app,dooh,user}.ext.data and strips it from the request.
func ExtractGlobalFPD(bidRequest *openrtb2.BidRequest) (map[string][]byte, error) {
	fpdReqData := make(map[string][]byte, 4)

	if bidRequest.Site != nil {
		data, newExt, err := extractExtData(bidRequest.Site.Ext)
		if err != nil {
			return nil, err
		}
		if data != nil {
			fpdReqData[siteKey] = data
			bidRequest.Site.Ext = newExt
		}
	}

	if bidRequest.App != nil {
		data, newExt, err := extractExtData(bidRequest.App.Ext)
		if err != nil {
			return nil, err
		}
		if data != nil {
			fpdReqData[appKey] = data
			bidRequest.App.Ext = newExt
		}
	}

	if bidRequest.DOOH != nil {
		data, newExt, err := extractExtData(bidRequest.DOOH.Ext)
		if err != nil {
			return nil, err
		}
		if data != nil {
			fpdReqData[doohKey] = data
			bidRequest.DOOH.Ext = newExt
		}
	}

	if bidRequest.User != nil {
		data, newExt, err := extractExtData(bidRequest.User.Ext)
		if err != nil {
			return nil, err
		}
		if data != nil {
			fpdReqData[userKey] = data
			bidRequest.User.Ext = newExt
		}
	}

	return fpdReqData, nil
}

// extractExtData pulls the "data" element out of an ext object, returning the
// element and the ext with the element removed.
func extractExtData(ext json.RawMessage) ([]byte, json.RawMessage, error) {
	if len(ext) == 0 {
		return nil, ext, nil
	}

	extMap := map[string]json.RawMessage{}
	if err := jsonutil.Unmarshal(ext, &extMap); err != nil {
		return nil, ext, err
	}
	if len(extMap[dataKey]) == 0 {
		return nil, ext, nil
	}

	newExt, err := jsonutil.DropElement(ext, dataKey)
	if err != nil {
		return nil, ext, err
	}
	return extMap[dataKey], newExt, nil
}

// ExtractOpenRtbGlobalFPD collects user.data and {site,app,dooh}.content.data
// and strips them from the request.
func ExtractOpenRtbGlobalFPD(bidRequest *openrtb2.BidRequest) map[string][]openrtb2.Data {
	openRtbGlobalFPD := make(map[string][]openrtb2.Data, 4)

	if bidRequest.User != nil && len(bidRequest.User.Data) > 0 {
		openRtbGlobalFPD[userDataKey] = bidRequest.User.Data
		bidRequest.User.Data = nil
	}

	if bidRequest.Site != nil && bidRequest.Site.Content != nil && len(bidRequest.Site.Content.Data) > 0 {
		openRtbGlobalFPD[siteContentDataKey] = bidRequest.Site.Content.Data
		bidRequest.Site.Content.Data = nil
	}

	if bidRequest.App != nil && bidRequest.App.Content != nil && len(bidRequest.App.Content.Data) > 0 {
		openRtbGlobalFPD[appContentDataKey] = bidRequest.App.Content.Data
		bidRequest.App.Content.Data = nil
	}

	if bidRequest.DOOH != nil && bidRequest.DOOH.Content != nil && len(bidRequest.DOOH.Content.Data) > 0 {
		openRtbGlobalFPD[doohContentDataKey] = bidRequest.DOOH.Content.Data
		bidRequest.DOOH.Content.Data = nil
	}

	return openRtbGlobalFPD
}

// ExtractBidderConfigFPD turns ext.prebid.bidderconfig into a per-bidder FPD
// config map. The "*" wildcard applies to every bidder; an explicit entry for a
// bidder wins over the wildcard. Bidder keys are matched case insensitively.
func ExtractBidderConfigFPD(reqExtPrebid *openrtb_ext.ExtRequestPrebid) (map[openrtb_ext.BidderName]*openrtb_ext.ORTB2, error) {
	fpd := make(map[openrtb_ext.BidderName]*openrtb_ext.ORTB2)

	for _, bidderConfig := range reqExtPrebid.BidderConfigs {
		for _, bidder := range bidderConfig.Bidders {
			if strings.TrimSpace(bidder) == wildcard {
				bidder = wildcard
			} else {
				bidder = string(openrtb_ext.NormalizeBidderNameOrUnchanged(bidder))
			}

			if _, duplicate := fpd[openrtb_ext.BidderName(bidder)]; duplicate {
				return nil, &errortypes.BadInput{
					Message: fmt.Sprintf("multiple First Party Data bidder configs provided for bidder: %s", bidder),
				}
			}

			fpdBidderData := &openrtb_ext.ORTB2{}
			if bidderConfig.Config != nil && bidderConfig.Config.ORTB2 != nil {
				fpdBidderData.Site = bidderConfig.Config.ORTB2.Site
				fpdBidderData.App = bidderConfig.Config.ORTB2.App
				fpdBidderData.DOOH = bidderConfig.Config.ORTB2.DOOH
				fpdBidderData.User = bidderConfig.Config.ORTB2.User
			}

			fpd[openrtb_ext.BidderName(bidder)] = fpdBidderData
		}
	}

	reqExtPrebid.BidderConfigs = nil

	return fpd, nil
}

// ExtractFPDForBidders extracts FPD data from request if specified. The global
// data and bidder config data are stripped from the request as a side effect.
func ExtractFPDForBidders(bidRequest *openrtb2.BidRequest, reqExtPrebid *openrtb_ext.ExtRequestPrebid) (map[openrtb_ext.BidderName]*ResolvedFirstPartyData, []error) {
	var fpdBidderConfigData map[openrtb_ext.BidderName]*openrtb_ext.ORTB2
	var biddersWithGlobalFPD []string

	if reqExtPrebid != nil {
		var err error
		fpdBidderConfigData, err = ExtractBidderConfigFPD(reqExtPrebid)
		if err != nil {
			return nil, []error{err}
		}

		if reqExtPrebid.Data != nil {
			biddersWithGlobalFPD = reqExtPrebid.Data.Bidders
			reqExtPrebid.Data.Bidders = nil
		}
	}

	globalFpd, err := ExtractGlobalFPD(bidRequest)
	if err != nil {
		return nil, []error{err}
	}

	var openRtbGlobalFPD map[string][]openrtb2.Data
	if biddersWithGlobalFPD != nil {
		// Bidders without global fpd config receive site, app and user data as is.
		openRtbGlobalFPD = ExtractOpenRtbGlobalFPD(bidRequest)
	}

	return ResolveFPD(bidRequest, fpdBidderConfigData, globalFpd, openRtbGlobalFPD, biddersWithGlobalFPD)
}

// ResolveFPD merges global FPD and bidder config FPD into the final per-bidder
// resolved data. If an attribute doesn't pass validation checks the entire
// request is rejected with an error message.
//
// When biddersWithGlobalFPD is nil, every bidder with a bidder config receives
// both global and bidder specific data. Otherwise only the listed bidders do,
// whether or not they carry a bidder config of their own.
func ResolveFPD(bidRequest *openrtb2.BidRequest, fpdBidderConfigData map[openrtb_ext.BidderName]*openrtb_ext.ORTB2, globalFPD map[string][]byte, openRtbGlobalFPD map[string][]openrtb2.Data, biddersWithGlobalFPD []string) (map[openrtb_ext.BidderName]*ResolvedFirstPartyData, []error) {
	var errL []error

	resolvedFpd := make(map[openrtb_ext.BidderName]*ResolvedFirstPartyData)

	allBiddersTable := make(map[string]struct{})
	if biddersWithGlobalFPD == nil {
		//add all bidders in bidder configs to receive global data and bidder specific data
		for bidderName := range fpdBidderConfigData {
			if bidderName != wildcard {
				allBiddersTable[string(bidderName)] = struct{}{}
			}
		}
	} else {
		//only bidders in global bidder list will receive global data and bidder specific data
		for _, bidderName := range biddersWithGlobalFPD {
			allBiddersTable[string(openrtb_ext.NormalizeBidderNameOrUnchanged(bidderName))] = struct{}{}
		}
	}

	//bidders with a config but not in the global list still receive their bidder specific data
	biddersToResolve := make(map[string]struct{}, len(allBiddersTable))
	for bidderName := range allBiddersTable {
		biddersToResolve[bidderName] = struct{}{}
	}
	for bidderName := range fpdBidderConfigData {
		if bidderName != wildcard {
			biddersToResolve[string(bidderName)] = struct{}{}
		}
	}

	wildcardConfig := fpdBidderConfigData[wildcard]

	for bidderName := range biddersToResolve {
		fpdConfig := mergeConfigs(wildcardConfig, fpdBidderConfigData[openrtb_ext.BidderName(bidderName)])
		_, hasGlobalFPD := allBiddersTable[bidderName]

		resolved, errs := resolveBidderFPD(bidRequest, fpdConfig, globalFPD, openRtbGlobalFPD, hasGlobalFPD, bidderName)
		if len(errs) > 0 {
			errL = append(errL, errs...)
			continue
		}
		resolvedFpd[openrtb_ext.BidderName(bidderName)] = resolved
	}

	if len(errL) > 0 {
		return nil, errL
	}
	return resolvedFpd, nil
}

// mergeConfigs overlays an explicit bidder config on top of the wildcard one.
// Explicit entries win attribute by attribute.
func mergeConfigs(wildcardConfig, bidderConfig *openrtb_ext.ORTB2) *openrtb_ext.ORTB2 {
	if wildcardConfig == nil {
		return bidderConfig
	}
	if bidderConfig == nil {
		return wildcardConfig
	}

	merged := *wildcardConfig
	if bidderConfig.Site != nil {
		merged.Site = bidderConfig.Site
	}
	if bidderConfig.App != nil {
		merged.App = bidderConfig.App
	}
	if bidderConfig.DOOH != nil {
		merged.DOOH = bidderConfig.DOOH
	}
	if bidderConfig.User != nil {
		merged.User = bidderConfig.User
	}
	return &merged
}

func resolveBidderFPD(bidRequest *openrtb2.BidRequest, fpdConfig *openrtb_ext.ORTB2, globalFPD map[string][]byte, openRtbGlobalFPD map[string][]openrtb2.Data, hasGlobalFPD bool, bidderName string) (*ResolvedFirstPartyData, []error) {
	var errL []error
	resolved := &ResolvedFirstPartyData{}

	var fpdUser *openrtb2.User
	var fpdSite *openrtb2.Site
	var fpdApp *openrtb2.App
	var fpdDOOH *openrtb2.DOOH
	if fpdConfig != nil {
		fpdUser = fpdConfig.User
		fpdSite = fpdConfig.Site
		fpdApp = fpdConfig.App
		fpdDOOH = fpdConfig.DOOH
	}

	newUser, err := resolveUser(fpdUser, bidRequest.User, globalFPD, openRtbGlobalFPD, hasGlobalFPD, bidderName)
	if err != nil {
		errL = append(errL, err)
	}
	resolved.User = newUser

	newApp, err := resolveApp(fpdApp, bidRequest.App, globalFPD, openRtbGlobalFPD, hasGlobalFPD, bidderName)
	if err != nil {
		errL = append(errL, err)
	}
	resolved.App = newApp

	newSite, err := resolveSite(fpdSite, bidRequest.Site, globalFPD, openRtbGlobalFPD, hasGlobalFPD, bidderName)
	if err != nil {
		errL = append(errL, err)
	}
	resolved.Site = newSite

	newDOOH, err := resolveDOOH(fpdDOOH, bidRequest.DOOH, globalFPD, openRtbGlobalFPD, hasGlobalFPD, bidderName)
	if err != nil {
		errL = append(errL, err)
	}
	resolved.DOOH = newDOOH

	return resolved, errL
}

func resolveUser(fpdConfigUser *openrtb2.User, bidRequestUser *openrtb2.User, globalFPD map[string][]byte, openRtbGlobalFPD map[string][]openrtb2.Data, hasGlobalFPD bool, bidderName string) (*openrtb2.User, error) {
	if bidRequestUser == nil && fpdConfigUser == nil {
		return nil, nil
	}

	if bidRequestUser == nil && fpdConfigUser != nil {
		return nil, fmt.Errorf("incorrect First Party Data for bidder %s: User object is not defined in request, but defined in FPD config", bidderName)
	}

	newUser := *bidRequestUser
	var err error

	if hasGlobalFPD {
		//apply global fpd
		if len(globalFPD[userKey]) > 0 {
			extData := buildExtData(globalFPD[userKey])
			if len(newUser.Ext) > 0 {
				newUser.Ext, err = jsonpatch.MergePatch(newUser.Ext, extData)
				if err != nil {
					return nil, err
				}
			} else {
				newUser.Ext = extData
			}
		}
		if len(openRtbGlobalFPD[userDataKey]) > 0 {
			newUser.Data = openRtbGlobalFPD[userDataKey]
		}
	}
	if fpdConfigUser != nil {
		//apply bidder specific fpd if present
		newUser, err = mergeUsers(&newUser, fpdConfigUser)
	}

	return &newUser, err
}

func mergeUsers(original *openrtb2.User, fpdConfigUser *openrtb2.User) (openrtb2.User, error) {
	var err error
	newUser := *original

	newUser.Keywords = fpdConfigUser.Keywords
	newUser.Gender = fpdConfigUser.Gender
	newUser.Yob = fpdConfigUser.Yob

	if len(fpdConfigUser.Ext) > 0 {
		if len(original.Ext) > 0 {
			newUser.Ext, err = jsonpatch.MergePatch(original.Ext, fpdConfigUser.Ext)
		} else {
			newUser.Ext = fpdConfigUser.Ext
		}
	}

	return newUser, err
}

func resolveSite(fpdConfigSite *openrtb2.Site, bidRequestSite *openrtb2.Site, globalFPD map[string][]byte, openRtbGlobalFPD map[string][]openrtb2.Data, hasGlobalFPD bool, bidderName string) (*openrtb2.Site, error) {
	if bidRequestSite == nil && fpdConfigSite == nil {
		return nil, nil
	}
	if bidRequestSite == nil && fpdConfigSite != nil {
		return nil, fmt.Errorf("incorrect First Party Data for bidder %s: Site object is not defined in request, but defined in FPD config", bidderName)
	}

	newSite := *bidRequestSite
	var err error

	if hasGlobalFPD {
		//apply global fpd
		if len(globalFPD[siteKey]) > 0 {
			extData := buildExtData(globalFPD[siteKey])
			if len(newSite.Ext) > 0 {
				newSite.Ext, err = jsonpatch.MergePatch(newSite.Ext, extData)
				if err != nil {
					return nil, err
				}
			} else {
				newSite.Ext = extData
			}
		}
		if len(openRtbGlobalFPD[siteContentDataKey]) > 0 {
			if newSite.Content != nil {
				contentCopy := *newSite.Content
				contentCopy.Data = openRtbGlobalFPD[siteContentDataKey]
				newSite.Content = &contentCopy
			} else {
				newSite.Content = &openrtb2.Content{Data: openRtbGlobalFPD[siteContentDataKey]}
			}
		}
	}

	if fpdConfigSite != nil {
		//apply bidder specific fpd if present
		//result site should have ID or Page, fpd becomes incorrect if it overwrites page to empty one and ID is empty in original site
		if fpdConfigSite.Page == "" && newSite.Page != "" && newSite.ID == "" {
			return nil, fmt.Errorf("incorrect First Party Data for bidder %s: Site object cannot set empty page if req.site.id is empty", bidderName)
		}
		newSite, err = mergeSites(&newSite, fpdConfigSite)
	}
	return &newSite, err
}

func mergeSites(originalSite *openrtb2.Site, fpdConfigSite *openrtb2.Site) (openrtb2.Site, error) {
	var err error
	newSite := *originalSite

	newSite.Name = fpdConfigSite.Name
	newSite.Domain = fpdConfigSite.Domain
	newSite.Cat = fpdConfigSite.Cat
	newSite.SectionCat = fpdConfigSite.SectionCat
	newSite.PageCat = fpdConfigSite.PageCat
	newSite.Page = fpdConfigSite.Page
	newSite.Search = fpdConfigSite.Search
	newSite.Keywords = fpdConfigSite.Keywords

	if len(fpdConfigSite.Ext) > 0 {
		if len(originalSite.Ext) > 0 {
			newSite.Ext, err = jsonpatch.MergePatch(originalSite.Ext, fpdConfigSite.Ext)
		} else {
			newSite.Ext = fpdConfigSite.Ext
		}
	}

	return newSite, err
}

func resolveApp(fpdConfigApp *openrtb2.App, bidRequestApp *openrtb2.App, globalFPD map[string][]byte, openRtbGlobalFPD map[string][]openrtb2.Data, hasGlobalFPD bool, bidderName string) (*openrtb2.App, error) {
	if bidRequestApp == nil && fpdConfigApp == nil {
		return nil, nil
	}

	if bidRequestApp == nil && fpdConfigApp != nil {
		return nil, fmt.Errorf("incorrect First Party Data for bidder %s: App object is not defined in request, but defined in FPD config", bidderName)
	}

	newApp := *bidRequestApp
	var err error

	if hasGlobalFPD {
		//apply global fpd if exists
		if len(globalFPD[appKey]) > 0 {
			extData := buildExtData(globalFPD[appKey])
			if len(newApp.Ext) > 0 {
				newApp.Ext, err = jsonpatch.MergePatch(newApp.Ext, extData)
				if err != nil {
					return nil, err
				}
			} else {
				newApp.Ext = extData
			}
		}
		if len(openRtbGlobalFPD[appContentDataKey]) > 0 {
			if newApp.Content != nil {
				contentCopy := *newApp.Content
				contentCopy.Data = openRtbGlobalFPD[appContentDataKey]
				newApp.Content = &contentCopy
			} else {
				newApp.Content = &openrtb2.Content{Data: openRtbGlobalFPD[appContentDataKey]}
			}
		}
	}

	if fpdConfigApp != nil {
		//apply bidder specific fpd if present
		newApp, err = mergeApps(&newApp, fpdConfigApp)
	}

	return &newApp, err
}

func mergeApps(originalApp *openrtb2.App, fpdConfigApp *openrtb2.App) (openrtb2.App, error) {
	var err error
	newApp := *originalApp

	newApp.Name = fpdConfigApp.Name
	newApp.Bundle = fpdConfigApp.Bundle
	newApp.Domain = fpdConfigApp.Domain
	newApp.StoreURL = fpdConfigApp.StoreURL
	newApp.Cat = fpdConfigApp.Cat
	newApp.SectionCat = fpdConfigApp.SectionCat
	newApp.PageCat = fpdConfigApp.PageCat
	newApp.Ver = fpdConfigApp.Ver
	newApp.Keywords = fpdConfigApp.Keywords

	if len(fpdConfigApp.Ext) > 0 {
		if len(originalApp.Ext) > 0 {
			newApp.Ext, err = jsonpatch.MergePatch(originalApp.Ext, fpdConfigApp.Ext)
		} else {
			newApp.Ext = fpdConfigApp.Ext
		}
	}

	return newApp, err
}

func resolveDOOH(fpdConfigDOOH *openrtb2.DOOH, bidRequestDOOH *openrtb2.DOOH, globalFPD map[string][]byte, openRtbGlobalFPD map[string][]openrtb2.Data, hasGlobalFPD bool, bidderName string) (*openrtb2.DOOH, error) {
	if bidRequestDOOH == nil && fpdConfigDOOH == nil {
		return nil, nil
	}

	if bidRequestDOOH == nil && fpdConfigDOOH != nil {
		return nil, fmt.Errorf("incorrect First Party Data for bidder %s: DOOH object is not defined in request, but defined in FPD config", bidderName)
	}

	newDOOH := *bidRequestDOOH
	var err error

	if hasGlobalFPD {
		//apply global fpd if exists
		if len(globalFPD[doohKey]) > 0 {
			extData := buildExtData(globalFPD[doohKey])
			if len(newDOOH.Ext) > 0 {
				newDOOH.Ext, err = jsonpatch.MergePatch(newDOOH.Ext, extData)
				if err != nil {
					return nil, err
				}
			} else {
				newDOOH.Ext = extData
			}
		}
		if len(openRtbGlobalFPD[doohContentDataKey]) > 0 {
			if newDOOH.Content != nil {
				contentCopy := *newDOOH.Content
				contentCopy.Data = openRtbGlobalFPD[doohContentDataKey]
				newDOOH.Content = &contentCopy
			} else {
				newDOOH.Content = &openrtb2.Content{Data: openRtbGlobalFPD[doohContentDataKey]}
			}
		}
	}

	if fpdConfigDOOH != nil {
		//apply bidder specific fpd if present
		newDOOH, err = mergeDOOHs(&newDOOH, fpdConfigDOOH)
	}

	return &newDOOH, err
}

func mergeDOOHs(originalDOOH *openrtb2.DOOH, fpdConfigDOOH *openrtb2.DOOH) (openrtb2.DOOH, error) {
	var err error
	newDOOH := *originalDOOH

	newDOOH.Name = fpdConfigDOOH.Name
	newDOOH.Domain = fpdConfigDOOH.Domain
	newDOOH.VenueType = fpdConfigDOOH.VenueType
	newDOOH.VenueTypeTax = fpdConfigDOOH.VenueTypeTax
	newDOOH.Keywords = fpdConfigDOOH.Keywords

	if len(fpdConfigDOOH.Ext) > 0 {
		if len(originalDOOH.Ext) > 0 {
			newDOOH.Ext, err = jsonpatch.MergePatch(originalDOOH.Ext, fpdConfigDOOH.Ext)
		} else {
			newDOOH.Ext = fpdConfigDOOH.Ext
		}
	}

	return newDOOH, err
}

func buildExtData(data []byte) []byte {
	res := make([]byte, 0, len(data)+len(`{"data":}`))
	res = append(res, []byte(`{"data":`)...)
	res = append(res, data...)
	res = append(res, '}')
	return res
}
