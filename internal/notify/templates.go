package notify

import "fmt"

// Type classifies a notification. New types must be added here and
// given an arm in messageFor, so a type without a template is visible
// at the definition site instead of surfacing as the fallback text.
type Type string

const (
	TypeFileUploaded         Type = "file_uploaded"
	TypeFileApproved         Type = "file_approved"
	TypeCommentAdded         Type = "comment_added"
	TypeTaskAssigned         Type = "task_assigned"
	TypeTaskUpdated          Type = "task_updated"
	TypeProjectInvite        Type = "project_invite"
	TypeProjectAccepted      Type = "project_accepted"
	TypeProjectDeclined      Type = "project_declined"
	TypeProjectStatusChanged Type = "project_status_changed"
	TypeProjectUpdated       Type = "project_updated"
	TypeDeadlineWarning      Type = "deadline_warning"
	TypeMention              Type = "mention"
)

// ReferenceType names the kind of record a notification points at.
type ReferenceType string

const (
	RefTask        ReferenceType = "task"
	RefProject     ReferenceType = "project"
	RefFile        ReferenceType = "file"
	RefChatMessage ReferenceType = "chat_message"
)

// messageFor renders the default message for a notification, keyed by
// its type and, for some types, the kind of record it points at.
func messageFor(actorName string, typ Type, referenceType ReferenceType) string {
	switch typ {
	case TypeFileUploaded:
		switch referenceType {
		case RefTask:
			return fmt.Sprintf("%s added a file to the task.", actorName)
		case RefProject:
			return fmt.Sprintf("%s added a file to the project.", actorName)
		default:
			return fmt.Sprintf("%s uploaded a new file.", actorName)
		}
	case TypeFileApproved:
		return fmt.Sprintf("%s approved the file.", actorName)
	case TypeCommentAdded:
		switch referenceType {
		case RefTask:
			return fmt.Sprintf("%s commented on the task.", actorName)
		case RefFile:
			return fmt.Sprintf("%s commented on the file.", actorName)
		case RefProject:
			return fmt.Sprintf("%s left a comment in the project.", actorName)
		default:
			return fmt.Sprintf("%s added a comment.", actorName)
		}
	case TypeTaskAssigned:
		return fmt.Sprintf("%s assigned you a task.", actorName)
	case TypeTaskUpdated:
		return fmt.Sprintf("%s updated the task.", actorName)
	case TypeProjectInvite:
		return fmt.Sprintf("%s invited you to join the project.", actorName)
	case TypeProjectAccepted:
		return fmt.Sprintf("%s accepted the invitation to join the project.", actorName)
	case TypeProjectDeclined:
		return fmt.Sprintf("%s declined the invitation to join the project.", actorName)
	case TypeProjectStatusChanged:
		return fmt.Sprintf("%s changed the status of the project.", actorName)
	case TypeProjectUpdated:
		return fmt.Sprintf("%s updated the project details.", actorName)
	case TypeDeadlineWarning:
		return fmt.Sprintf("%s set a deadline that is coming up.", actorName)
	case TypeMention:
		return fmt.Sprintf("%s mentioned you in a conversation.", actorName)
	default:
		return fmt.Sprintf("%s performed an action.", actorName)
	}
}
