package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// relayPrefix is prepended to whiteboard event names by some relays
// ("wb_draw", "wb_undo"). Decoding accepts both spellings.
const relayPrefix = "wb_"

// MarshalAction encodes a as a flat JSON object with a "type" discriminator.
func MarshalAction(a Action) ([]byte, error) {
	switch v := a.(type) {
	case DrawAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			DrawAction
		}{ActionDraw, v})
	case EraseAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			EraseAction
		}{ActionErase, v})
	case LineAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			LineAction
		}{ActionLine, v})
	case TextAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			TextAction
		}{ActionText, v})
	case ClearAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
		}{ActionClear})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownActionType, a)
	}
}

// UnmarshalAction decodes one action, reading its variant from "type".
func UnmarshalAction(data []byte) (Action, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return unmarshalActionAs(ActionType(strings.TrimPrefix(head.Type, relayPrefix)), data)
}

func unmarshalActionAs(t ActionType, data []byte) (Action, error) {
	var (
		a   Action
		err error
	)
	switch t {
	case ActionDraw:
		var v DrawAction
		err = json.Unmarshal(data, &v)
		a = v
	case ActionErase:
		var v EraseAction
		err = json.Unmarshal(data, &v)
		a = v
	case ActionLine:
		var v LineAction
		err = json.Unmarshal(data, &v)
		a = v
	case ActionText:
		var v TextAction
		err = json.Unmarshal(data, &v)
		a = v
	case ActionClear:
		a = ClearAction{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, t, err)
	}
	return a, nil
}

// MarshalActions encodes a whole log as a JSON array.
func MarshalActions(actions []Action) ([]byte, error) {
	raw, err := marshalActionList(actions)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// UnmarshalActions decodes a JSON array of actions. Entries with an unknown
// type or a malformed body are skipped so a snapshot written by a newer
// peer still loads.
func UnmarshalActions(data []byte) ([]Action, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return decodeActionList(raw), nil
}

func marshalActionList(actions []Action) ([]json.RawMessage, error) {
	raw := make([]json.RawMessage, 0, len(actions))
	for _, a := range actions {
		b, err := MarshalAction(a)
		if err != nil {
			return nil, err
		}
		raw = append(raw, b)
	}
	return raw, nil
}

func decodeActionList(raw []json.RawMessage) []Action {
	actions := make([]Action, 0, len(raw))
	for _, r := range raw {
		a, err := UnmarshalAction(r)
		if err != nil {
			continue
		}
		// A stored log never carries clear; it is applied by truncation.
		if _, ok := a.(ClearAction); ok {
			actions = actions[:0]
			continue
		}
		actions = append(actions, a)
	}
	return actions
}
