package group

import (
	"time"

	"github.com/trezcool/academia/core"
)

// Group is a class of students taught by one instructor.
type Group struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	InstructorID string    `json:"instructorId"`
	AdminID      string    `json:"adminId,omitempty"`
	StudentIDs   []string  `json:"studentIds"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasStudent reports whether userID is enrolled in the group.
func (g Group) HasStudent(userID string) bool {
	return core.ContainsString(g.StudentIDs, userID)
}

// IsParticipant reports whether userID is a student, the instructor or the admin of the group.
func (g Group) IsParticipant(userID string) bool {
	return userID != "" && (g.InstructorID == userID || g.AdminID == userID || g.HasStudent(userID))
}

// ParticipantIDs returns every user taking part in the group, students first.
func (g Group) ParticipantIDs() []string {
	ids := make([]string, 0, len(g.StudentIDs)+2)
	ids = append(ids, g.StudentIDs...)
	for _, id := range []string{g.InstructorID, g.AdminID} {
		if id != "" && !core.ContainsString(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

type NewGroup struct {
	Name         string   `json:"name" validate:"required,notblank"`
	Description  string   `json:"description"`
	InstructorID string   `json:"instructorId" validate:"omitempty,uuid"`
	StudentIDs   []string `json:"studentIds" validate:"dive,uuid"`
}

type QueryFilter struct {
	ParticipantID string
}
