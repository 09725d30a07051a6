package api

import (
	"attendance-backend/internal/chat"
	"attendance-backend/internal/database"
	"attendance-backend/internal/progress"
	"attendance-backend/pkg/api"
)

func convertJob(j database.ProcessingJob) api.ProcessingJob {
	job := api.ProcessingJob{
		Id:               j.Id,
		SessionId:        j.SessionId,
		RecordName:       j.RecordName,
		VideoKey:         j.VideoKey,
		ProviderJobId:    j.ProviderJobId.String,
		Status:           j.Status,
		ErrorMessage:     j.ErrorMessage.String,
		FailedStage:      j.FailedStage.String,
		StudentsExpected: j.StudentsExpected,
		StudentsDetected: j.StudentsDetected,
		TotalDetections:  j.TotalDetections,
		RecordsWritten:   j.RecordsWritten,
		RecordsFailed:    j.RecordsFailed,
		Truncated:        j.Truncated,
		CreationTime:     j.CreationTime,
	}
	if j.StartTime.Valid {
		job.StartTime = &j.StartTime.Time
	}
	if j.CompletionTime.Valid {
		job.CompletionTime = &j.CompletionTime.Time
	}
	return job
}

func convertJobs(js []database.ProcessingJob) []api.ProcessingJob {
	jobs := make([]api.ProcessingJob, 0, len(js))
	for _, j := range js {
		jobs = append(jobs, convertJob(j))
	}
	return jobs
}

func convertProgress(p progress.Progress) api.JobProgress {
	return api.JobProgress{
		JobId:     p.JobId,
		Stage:     string(p.Stage),
		Detail:    p.Detail,
		UpdatedAt: p.UpdatedAt,
	}
}

func convertChatSession(s database.ChatSession) api.ChatSessionMetadata {
	return api.ChatSessionMetadata{ID: s.ID, Title: s.Title, SessionId: s.SessionId.String}
}

func convertReply(reply chat.Reply) api.ChatResponse {
	calls := make([]api.ToolCall, 0, len(reply.ToolCalls))
	for _, c := range reply.ToolCalls {
		calls = append(calls, api.ToolCall{Name: c.Name, Arguments: c.Arguments, Result: c.Result})
	}
	return api.ChatResponse{Reply: reply.Content, ToolCalls: calls}
}
