package activity

import "time"

// Difficulty levels, as authored by teachers.
const (
	DifficultyEasy   = "Fácil"
	DifficultyMedium = "Intermedio"
	DifficultyHard   = "Difícil"
)

const DefaultImageURL = "/images/default-activity.png"

type Alternative struct {
	ID      string `json:"id"`
	Text    string `json:"texto"`
	Correct bool   `json:"-"` // never serialized towards students
}

type Question struct {
	ID           string        `json:"id"`
	Text         string        `json:"preguntaTexto"`
	Points       int           `json:"puntaje"`
	Alternatives []Alternative `json:"alternativas"`
}

type Activity struct {
	ID          string     `json:"id"`
	Title       string     `json:"titulo"`
	Description string     `json:"descripcion"`
	Topic       string     `json:"tema"`
	Difficulty  string     `json:"dificultad"`
	ImageURL    string     `json:"imagenUrl"`
	TeacherID   string     `json:"profesorId"`
	Questions   []Question `json:"preguntas"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
}

// TotalPoints is the maximum score a submission can obtain.
func (a *Activity) TotalPoints() int {
	var total int
	for _, q := range a.Questions {
		total += q.Points
	}
	return total
}

// Progress records one student's graded submission for one activity;
// unique per (student, activity).
type Progress struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"estudianteId"`
	ActivityID  string    `json:"actividadId"`
	Score       int       `json:"puntajeObtenido"`
	TotalScore  int       `json:"puntajeTotalPosible"`
	CompletedAt time.Time `json:"fechaCompletado"` // UTC
}
