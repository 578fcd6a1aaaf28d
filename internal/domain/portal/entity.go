// Package portal holds the thin read models of the portal's CRUD surfaces.
// The client renders these as-is; no local state derives from them.
package portal

// Profile is the HR view of the signed-in account.
type Profile struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Patronymic string `json:"patronymic"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	AvatarURL  string `json:"avatar"`
	Department string `json:"department"`
	Position   string `json:"position"`
}

// Task is an assigned work or study item.
type Task struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Deadline string `json:"deadline"`
}

// Document is a downloadable record (certificates, orders, transcripts).
type Document struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Date  string `json:"date"`
}

// NewsItem is a portal announcement.
type NewsItem struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	PublishedAt string `json:"published_at"`
}
