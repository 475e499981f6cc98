package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
)

func TestDecode(t *testing.T) {
	tests := map[string]struct {
		raw      string
		expFrame protocol.Frame
		expKnown bool
		expErr   bool
	}{
		"A complete frame should be decoded.": {
			raw: `{
				"metadata": {"agent_user_id": "a1", "user_id": "u1", "organization_code": "o1",
					"chat_conversation_id": "c1", "chat_topic_id": "ct1", "instruction": "normal",
					"sandbox_id": "s1", "super_magic_task_id": "t1"},
				"payload": {"task_id": "pt1", "type": "tool_call", "content": "hi", "status": "running",
					"tool": {"id": "tl1", "name": "browser", "action": "open", "status": "finished", "remark": "r",
						"detail": {"file_key": "k1"}, "attachments": [{"file_key": "k1", "file_extension": "png", "filename": "a.png"}]},
					"steps": [{"status": "finished"}], "event": "after_tool_call",
					"attachments": [], "show_in_ui": false, "message_id": "m1", "project_archive": null}
			}`,
			expFrame: protocol.Frame{
				Metadata: protocol.Metadata{
					AgentUserID: "a1", UserID: "u1", OrganizationCode: "o1", ChatConversationID: "c1",
					ChatTopicID: "ct1", Instruction: "normal", SandboxID: "s1", SuperMagicTaskID: "t1",
				},
				Payload: protocol.Payload{
					TaskID: "pt1", Type: protocol.MessageTypeToolCall, Content: "hi", Status: protocol.StatusRunning,
					Tool: &protocol.Tool{
						ID: "tl1", Name: "browser", Action: "open", Status: "finished", Remark: "r",
						Detail:      map[string]any{"file_key": "k1"},
						Attachments: []protocol.Attachment{{FileKey: "k1", FileExtension: "png", FileName: "a.png"}},
					},
					Steps:       []protocol.Step{{Status: "finished"}},
					Event:       "after_tool_call",
					Attachments: []protocol.Attachment{},
					ShowInUI:    false,
					MessageID:   "m1",
				},
			},
			expKnown: true,
		},

		"Missing fields should be defaulted and show in UI should be true.": {
			raw: `{"payload": {"type": "chat", "task_id": "pt1"}}`,
			expFrame: protocol.Frame{
				Payload: protocol.Payload{TaskID: "pt1", Type: protocol.MessageTypeChat, ShowInUI: true},
			},
			expKnown: true,
		},

		"Unknown types should be forwarded.": {
			raw: `{"payload": {"type": "Something_New", "status": "FINISHED"}}`,
			expFrame: protocol.Frame{
				Payload: protocol.Payload{Type: "something_new", Status: protocol.StatusFinished, ShowInUI: true},
			},
			expKnown: false,
		},

		"Missing type should be forwarded.": {
			raw: `{"metadata": {"sandbox_id": "s1"}}`,
			expFrame: protocol.Frame{
				Metadata: protocol.Metadata{SandboxID: "s1"},
				Payload:  protocol.Payload{ShowInUI: true},
			},
			expKnown: false,
		},

		"Malformed JSON should fail.": {
			raw:    `{"payload": `,
			expErr: true,
		},

		"Empty data should fail.": {
			raw:    ` `,
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			gotFrame, err := protocol.Decode([]byte(test.raw))

			if test.expErr {
				require.Error(err)
				assert.ErrorIs(err, model.ErrNotValid)
				return
			}
			require.NoError(err)
			assert.Equal(test.expFrame, gotFrame)
			assert.Equal(test.expKnown, gotFrame.Payload.Type.IsKnown())
		})
	}
}

func TestEncodeOmitsHandshakeFields(t *testing.T) {
	data, err := protocol.Encode(protocol.Frame{Payload: protocol.Payload{Type: protocol.MessageTypeMessage}})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "upload_config")
	assert.NotContains(t, string(data), "prompt")
	assert.Contains(t, string(data), `"type":"message"`)
	assert.Contains(t, string(data), `"project_archive":null`)
}

func TestUnknownNestedFieldsAreRelayed(t *testing.T) {
	tests := map[string]struct {
		raw        string
		expSteps   []protocol.Step
		expAtts    []protocol.Attachment
		expEncoded []string
	}{
		"Unknown step and attachment fields should be kept.": {
			raw: `{"payload": {"type": "message",
				"steps": [{"id": "s1", "status": "running", "progress": 0.5, "children": [{"id":"c1"}]}],
				"attachments": [{"file_key": "k1", "file_extension": "png", "filename": "a.png", "width": 640, "source": "browser"}]}}`,
			expSteps: []protocol.Step{{ID: "s1", Status: "running", Extra: protocol.Extra{
				"progress": []byte(`0.5`),
				"children": []byte(`[{"id":"c1"}]`),
			}}},
			expAtts: []protocol.Attachment{{FileKey: "k1", FileExtension: "png", FileName: "a.png", Extra: protocol.Extra{
				"width":  []byte(`640`),
				"source": []byte(`"browser"`),
			}}},
			expEncoded: []string{`"progress":0.5`, `"children":[{"id":"c1"}]`, `"width":640`, `"source":"browser"`, `"file_key":"k1"`, `"status":"running"`},
		},

		"Objects without unknown fields should not have extras.": {
			raw:        `{"payload": {"steps": [{"status": "finished"}], "attachments": [{"file_key": "k1", "file_extension": "png", "filename": "a.png"}]}}`,
			expSteps:   []protocol.Step{{Status: "finished"}},
			expAtts:    []protocol.Attachment{{FileKey: "k1", FileExtension: "png", FileName: "a.png"}},
			expEncoded: []string{`{"status":"finished"}`, `{"file_key":"k1","file_extension":"png","filename":"a.png"}`},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			f, err := protocol.Decode([]byte(test.raw))
			require.NoError(err)
			require.Len(f.Payload.Steps, len(test.expSteps))
			require.Len(f.Payload.Attachments, len(test.expAtts))
			for i, exp := range test.expSteps {
				assertSameExtra(t, exp.Extra, f.Payload.Steps[i].Extra)
				exp.Extra, f.Payload.Steps[i].Extra = nil, nil
				assert.Equal(exp, f.Payload.Steps[i])
			}
			for i, exp := range test.expAtts {
				assertSameExtra(t, exp.Extra, f.Payload.Attachments[i].Extra)
			}

			f, err = protocol.Decode([]byte(test.raw))
			require.NoError(err)
			data, err := protocol.Encode(f)
			require.NoError(err)
			for _, exp := range test.expEncoded {
				assert.Contains(string(data), exp)
			}
		})
	}
}

// assertSameExtra compares the extra fields ignoring the JSON formatting.
func assertSameExtra(t *testing.T, exp, got protocol.Extra) {
	t.Helper()
	require.Len(t, got, len(exp))
	for k, v := range exp {
		require.Contains(t, got, k)
		assert.JSONEq(t, string(v), string(got[k]))
	}
}

func TestStatusTaskStatus(t *testing.T) {
	tests := map[string]struct {
		status      protocol.Status
		exp         model.TaskStatus
		expTerminal bool
	}{
		"Running":   {status: protocol.StatusRunning, exp: model.TaskStatusRunning},
		"Suspended": {status: protocol.StatusSuspended, exp: model.TaskStatusSuspended, expTerminal: true},
		"Finished":  {status: protocol.StatusFinished, exp: model.TaskStatusFinished, expTerminal: true},
		"Error":     {status: protocol.StatusError, exp: model.TaskStatusError, expTerminal: true},
		"Unknown":   {status: "waiting", exp: ""},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, test.status.TaskStatus())
			assert.Equal(t, test.expTerminal, test.status.IsTerminal())
		})
	}
}
