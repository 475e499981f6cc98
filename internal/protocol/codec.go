package protocol

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/modernalchemist/magic-sub000/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Extra are the raw JSON fields of a wire object that its type doesn't know.
type Extra map[string]jsoniter.RawMessage

func unmarshalWithExtra(data []byte, v any, known []string) (Extra, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}

	var all Extra
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}

	return all, nil
}

// marshalWithExtra encodes v adding the extra fields, known fields always win.
func marshalWithExtra(v any, extra Extra) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var all Extra
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := all[k]; !ok {
			all[k] = raw
		}
	}

	return json.Marshal(all)
}

// Decode decodes a raw wire frame. Missing fields are left with their zero values
// except `show_in_ui` that defaults to true. Unknown message types are not an error,
// callers can check them with MessageType.IsKnown.
func Decode(raw []byte) (Frame, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Frame{}, fmt.Errorf("empty frame: %w", model.ErrNotValid)
	}

	f := Frame{Payload: Payload{ShowInUI: true}}
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("could not decode frame: %w: %w", model.ErrNotValid, err)
	}

	f.Payload.Type = MessageType(strings.ToLower(strings.TrimSpace(string(f.Payload.Type))))
	f.Payload.Status = Status(strings.ToLower(strings.TrimSpace(string(f.Payload.Status))))

	return f, nil
}

// Encode encodes a frame into its wire format.
func Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("could not encode frame: %w", err)
	}
	return data, nil
}

// MarshalAttachments serializes a list of attachments, used to store them on the task.
func MarshalAttachments(atts []Attachment) (string, error) {
	if len(atts) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(atts)
	if err != nil {
		return "", fmt.Errorf("could not marshal attachments: %w", err)
	}
	return string(data), nil
}

// UnmarshalAttachments is the inverse of MarshalAttachments.
func UnmarshalAttachments(s string) ([]Attachment, error) {
	if s == "" {
		return nil, nil
	}
	var atts []Attachment
	if err := json.Unmarshal([]byte(s), &atts); err != nil {
		return nil, fmt.Errorf("could not unmarshal attachments: %w", err)
	}
	return atts, nil
}

// MarshalProjectArchive serializes a project archive, nil archives are returned as empty.
func MarshalProjectArchive(pa *ProjectArchive) (string, error) {
	if pa == nil {
		return "", nil
	}
	data, err := json.Marshal(pa)
	if err != nil {
		return "", fmt.Errorf("could not marshal project archive: %w", err)
	}
	return string(data), nil
}

// UnmarshalProjectArchive is the inverse of MarshalProjectArchive.
func UnmarshalProjectArchive(s string) (*ProjectArchive, error) {
	if s == "" {
		return nil, nil
	}
	pa := &ProjectArchive{}
	if err := json.Unmarshal([]byte(s), pa); err != nil {
		return nil, fmt.Errorf("could not unmarshal project archive: %w", err)
	}
	return pa, nil
}
