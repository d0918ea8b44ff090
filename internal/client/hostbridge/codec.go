package hostbridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/client/orchestrator"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names shared by client and server.
const (
	fieldGroupID    = "group_id"
	fieldChannelID  = "channel_id"
	fieldRootID     = "root_id"
	fieldMessage    = "message"
	fieldFiles      = "files"
	fieldBackground = "background"

	fieldRequestID  = "request_id"
	fieldSuccess    = "success"
	fieldPostID     = "post_id"
	fieldError      = "error"
	fieldFailures   = "failures"
	fieldIndex      = "index"
	fieldFilename   = "filename"
	fieldDurationMS = "duration_ms"
)

func submissionToStruct(sub orchestrator.Submission) (*structpb.Struct, error) {
	files := make([]any, len(sub.Files))
	for i, f := range sub.Files {
		files[i] = f
	}
	return structpb.NewStruct(map[string]any{
		fieldGroupID:    sub.GroupID,
		fieldChannelID:  sub.ChannelID,
		fieldRootID:     sub.RootID,
		fieldMessage:    sub.Message,
		fieldFiles:      files,
		fieldBackground: sub.Background,
	})
}

func structToSubmission(s *structpb.Struct) (orchestrator.Submission, error) {
	f := s.GetFields()
	sub := orchestrator.Submission{
		GroupID:    f[fieldGroupID].GetStringValue(),
		ChannelID:  f[fieldChannelID].GetStringValue(),
		RootID:     f[fieldRootID].GetStringValue(),
		Message:    f[fieldMessage].GetStringValue(),
		Background: f[fieldBackground].GetBoolValue(),
	}
	for i, v := range f[fieldFiles].GetListValue().GetValues() {
		path, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return sub, fmt.Errorf("files[%d] is not a string", i)
		}
		sub.Files = append(sub.Files, path.StringValue)
	}
	return sub, nil
}

func outcomeToStruct(out models.Outcome) (*structpb.Struct, error) {
	failures := make([]any, len(out.Failures))
	for i, ff := range out.Failures {
		failures[i] = map[string]any{
			fieldIndex:    ff.Index,
			fieldFilename: ff.Filename,
			fieldError:    errString(ff.Err),
		}
	}
	return structpb.NewStruct(map[string]any{
		fieldRequestID:  out.RequestID,
		fieldGroupID:    out.GroupID,
		fieldSuccess:    out.Success,
		fieldPostID:     out.PostID,
		fieldError:      errString(out.Err),
		fieldFailures:   failures,
		fieldDurationMS: out.Duration.Milliseconds(),
	})
}

// structToOutcome rebuilds an Outcome on the host side. Errors only keep
// their message.
func structToOutcome(s *structpb.Struct) models.Outcome {
	f := s.GetFields()
	out := models.Outcome{
		RequestID: f[fieldRequestID].GetStringValue(),
		GroupID:   f[fieldGroupID].GetStringValue(),
		Success:   f[fieldSuccess].GetBoolValue(),
		PostID:    f[fieldPostID].GetStringValue(),
		Duration:  time.Duration(f[fieldDurationMS].GetNumberValue()) * time.Millisecond,
	}
	if msg := f[fieldError].GetStringValue(); msg != "" {
		out.Err = errors.New(msg)
	}
	for _, v := range f[fieldFailures].GetListValue().GetValues() {
		ff := v.GetStructValue().GetFields()
		failure := models.FileFailure{
			Index:    int(ff[fieldIndex].GetNumberValue()),
			Filename: ff[fieldFilename].GetStringValue(),
		}
		if msg := ff[fieldError].GetStringValue(); msg != "" {
			failure.Err = errors.New(msg)
		}
		out.Failures = append(out.Failures, failure)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
