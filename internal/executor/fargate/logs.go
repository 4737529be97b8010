package fargate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
)

// =========================================================================
// LOG STREAMS
// =========================================================================
//
// The task definition points the container at the awslogs driver with a
// stream prefix. The driver then names each stream
//
//	<prefix>/<container name>/<task id>
//
// so the stream for a run is known as soon as RunTask returns, without
// listing the group. The stream only appears once the container writes its
// first line; a task that never started has no stream at all.
//
// GetLogEvents pages are not a reliable end marker. A page can be empty
// while more events follow, so reading stops only when the service hands
// back the same forward token it was sent.

// logStream is the stream the awslogs driver writes for a task.
func (e *Executor) logStream(handle TaskHandle) string {
	return e.config.LogStreamPrefix + "/" + e.config.ContainerName + "/" + handle.ID
}

// FetchLogs reads the task's log stream from the beginning and joins the
// messages with newlines in chronological order. A stream that was never
// created (the container did not start) yields empty output.
func (e *Executor) FetchLogs(ctx context.Context, handle TaskHandle) (string, error) {
	stream := e.logStream(handle)

	pages := cloudwatchlogs.NewGetLogEventsPaginator(e.clients.Logs, &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(e.config.LogGroup),
		LogStreamName: aws.String(stream),
		StartFromHead: aws.Bool(true),
	}, func(o *cloudwatchlogs.GetLogEventsPaginatorOptions) {
		o.StopOnDuplicateToken = true
	})

	var lines []string
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			if hasErrorCode(err, "ResourceNotFoundException") {
				e.logger.Warn("log stream not found", slog.String("stream", stream))
				break
			}
			return "", wrapf(err, "reading log stream %s", stream)
		}

		for _, event := range out.Events {
			lines = append(lines, strings.TrimRight(aws.ToString(event.Message), "\n"))
		}
	}

	return strings.Join(lines, "\n"), nil
}
