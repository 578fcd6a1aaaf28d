package attendance

// Submission is the multipart payload of both the start and the finish call.
// The server discriminates start from finish by whether the caller already
// has an open record, not by the payload shape.
type Submission struct {
	Auditorium string
	Geo        string
	Image      []byte
	ImageName  string
}
