package hookexecution

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/bidflare/exchange-core/hooks/hookanalytics"
	"github.com/bidflare/exchange-core/openrtb_ext"
	"github.com/bidflare/exchange-core/util/jsonutil"
)

// EnrichExtBidResponse adds the hook execution results to the response ext
// under ext.prebid.modules. Module errors and warnings are attached whenever
// hooks produced any; the trace tree is attached for the basic and verbose
// trace levels, with debug messages and analytics tags kept only for verbose.
func EnrichExtBidResponse(ext json.RawMessage, stageOutcomes []StageOutcome, traceLevel string) (json.RawMessage, error) {
	modules, err := GetModulesJSON(stageOutcomes, traceLevel)
	if err != nil || modules == nil {
		return ext, err
	}

	response, err := jsonutil.Marshal(map[string]map[string]json.RawMessage{
		"prebid": {"modules": modules},
	})
	if err != nil {
		return ext, err
	}

	if len(ext) == 0 {
		return response, nil
	}
	return jsonpatch.MergePatch(ext, response)
}

// GetModulesJSON returns the ext.prebid.modules object, or nil if there is nothing to report.
func GetModulesJSON(stageOutcomes []StageOutcome, traceLevel string) (json.RawMessage, error) {
	modulesOutcome := getModulesOutcome(stageOutcomes, traceLevel)
	if modulesOutcome == nil {
		return nil, nil
	}
	return jsonutil.Marshal(modulesOutcome)
}

func getModulesOutcome(stageOutcomes []StageOutcome, traceLevel string) *ModulesOutcome {
	var modulesOutcome ModulesOutcome

	isVerbose := traceLevel == openrtb_ext.TraceLevelVerbose
	withTrace := isVerbose || traceLevel == openrtb_ext.TraceLevelBasic

	stages := make(map[string]*Stage)
	stageNames := make([]string, 0)

	for _, stageOutcome := range stageOutcomes {
		if len(stageOutcome.Groups) == 0 {
			continue
		}

		for _, group := range stageOutcome.Groups {
			for _, hookOutcome := range group.InvocationResults {
				modulesOutcome.Errors = fillMessages(modulesOutcome.Errors, hookOutcome.Errors, hookOutcome.HookID)
				modulesOutcome.Warnings = fillMessages(modulesOutcome.Warnings, hookOutcome.Warnings, hookOutcome.HookID)
			}
		}

		if !withTrace {
			continue
		}

		stage, ok := stages[stageOutcome.Stage]
		if !ok {
			stage = &Stage{Stage: stageOutcome.Stage, Outcomes: []StageOutcome{}}
			stages[stageOutcome.Stage] = stage
			stageNames = append(stageNames, stageOutcome.Stage)
		}

		prepared := prepareStageOutcome(stageOutcome, isVerbose)
		stage.Outcomes = append(stage.Outcomes, prepared)
		if prepared.ExecutionTimeMillis > stage.ExecutionTimeMillis {
			stage.ExecutionTimeMillis = prepared.ExecutionTimeMillis
		}
	}

	if modulesOutcome.Errors == nil && modulesOutcome.Warnings == nil && len(stageNames) == 0 {
		return nil
	}

	if len(stageNames) > 0 {
		trace := &TraceOutcome{Stages: make([]Stage, 0, len(stageNames))}
		for _, name := range stageNames {
			stage := stages[name]
			trace.ExecutionTimeMillis += stage.ExecutionTimeMillis
			trace.Stages = append(trace.Stages, *stage)
		}
		modulesOutcome.Trace = trace
	}

	return &modulesOutcome
}

// prepareStageOutcome strips the verbose-only fields for lower trace levels.
func prepareStageOutcome(stageOutcome StageOutcome, isVerbose bool) StageOutcome {
	if isVerbose {
		return stageOutcome
	}

	groups := make([]GroupOutcome, len(stageOutcome.Groups))
	for i, group := range stageOutcome.Groups {
		results := make([]HookOutcome, len(group.InvocationResults))
		for j, hookOutcome := range group.InvocationResults {
			hookOutcome.DebugMessages = nil
			hookOutcome.AnalyticsTags = hookanalytics.Analytics{}
			results[j] = hookOutcome
		}
		group.InvocationResults = results
		groups[i] = group
	}

	stageOutcome.Groups = groups
	return stageOutcome
}

func fillMessages(messages Messages, values []string, hookID HookID) Messages {
	if len(values) == 0 {
		return messages
	}

	if messages == nil {
		return Messages{hookID.ModuleCode: {hookID.HookImplCode: values}}
	}

	if _, ok := messages[hookID.ModuleCode]; !ok {
		messages[hookID.ModuleCode] = map[string][]string{hookID.HookImplCode: values}
		return messages
	}

	if prevValues, ok := messages[hookID.ModuleCode][hookID.HookImplCode]; ok {
		values = append(prevValues, values...)
	}

	messages[hookID.ModuleCode][hookID.HookImplCode] = values
	return messages
}
