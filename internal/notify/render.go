package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/absence-notifier/internal/domain"
)

// Subject is the subject line of every absence notification.
const Subject = "Absence Notification"

const bodyTemplate = `Dear %s,

We noticed that you were absent for the enrolled course %s on the following days:
%s

Regular attendance is essential to stay aligned with the course content and placement activities. Please ensure you go through the missed session before attending the upcoming ones.

Kindly note 85%% attendance is mandatory to get certification and placement assistance. A minimum of 70%% attendance is mandatory to be eligible for certification and placement support.

Warm Regards,
Learning Coordinator
ChipEdge Technologies Pvt Ltd
https://chipedge.com/
`

// FormatDates stamps each absence label with the year of ref and joins them.
func FormatDates(labels []string, ref time.Time) string {
	formatted := make([]string, 0, len(labels))
	for _, label := range labels {
		formatted = append(formatted, fmt.Sprintf("%s-%d", label, ref.Year()))
	}
	return strings.Join(formatted, ", ")
}

// Render builds the notification for one learner. ref supplies the year for the date labels.
func Render(record domain.AbsenceRecord, sessionName string, ref time.Time) domain.Notification {
	return domain.Notification{
		Recipient:   record.Email,
		StudentName: record.StudentName,
		Subject:     Subject,
		Body:        fmt.Sprintf(bodyTemplate, record.StudentName, sessionName, FormatDates(record.AbsenceDates, ref)),
	}
}
