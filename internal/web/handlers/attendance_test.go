package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newAttendanceHandlerForTest(t *testing.T) (*AttendanceHandler, *testServices) {
	t.Helper()
	s := newTestServices(t)
	return NewAttendanceHandler(s.sessions, s.marking, s.recognizer, nil), s
}

const startBody = `{
	"teacher_id": "T001",
	"subject_id": 7,
	"section": "a",
	"semester": 3,
	"class_name": "cse-a"
}`

func TestAttendanceHandler_StartSession(t *testing.T) {
	handler, s := newAttendanceHandlerForTest(t)

	recorder := httptest.NewRecorder()
	handler.StartSession(recorder, jsonRequest("POST", "/api/v1/attendance/start-session", startBody))

	assertStatusCode(t, recorder, http.StatusCreated)
	assertContentType(t, recorder, "application/json")

	var first struct {
		Created       bool            `json:"created"`
		TotalStudents int             `json:"total_students"`
		Session       SessionResponse `json:"session"`
	}
	parseJSONResponse(t, recorder, &first)

	if !first.Created {
		t.Error("expected a new session")
	}
	if first.TotalStudents != 2 {
		t.Errorf("expected 2 students, got %d", first.TotalStudents)
	}
	if first.Session.Section != "A" || first.Session.Status != "active" {
		t.Errorf("unexpected session %+v", first.Session)
	}
	if first.Session.DurationMinutes != 60 {
		t.Errorf("expected default duration 60, got %d", first.Session.DurationMinutes)
	}
	if got := s.store.RecordCount(first.Session.SessionID); got != 2 {
		t.Errorf("expected 2 records, got %d", got)
	}

	// Starting again returns the same session
	recorder = httptest.NewRecorder()
	handler.StartSession(recorder, jsonRequest("POST", "/api/v1/attendance/start-session", startBody))

	assertStatusCode(t, recorder, http.StatusOK)
	var second struct {
		Created bool            `json:"created"`
		Session SessionResponse `json:"session"`
	}
	parseJSONResponse(t, recorder, &second)
	if second.Created {
		t.Error("expected existing session to be reused")
	}
	if second.Session.SessionID != first.Session.SessionID {
		t.Errorf("expected session %s, got %s", first.Session.SessionID, second.Session.SessionID)
	}
	if s.store.SessionCount() != 1 {
		t.Errorf("expected 1 session, got %d", s.store.SessionCount())
	}
}

func TestAttendanceHandler_StartSession_Validation(t *testing.T) {
	handler, _ := newAttendanceHandlerForTest(t)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"invalid json", `{not json`, errInvalidRequestBody},
		{"missing teacher", `{"subject_id": 7, "section": "A", "semester": 3, "class_name": "X"}`, "invalid fields: TeacherID: required"},
		{"semester out of range", `{"teacher_id": "T1", "subject_id": 7, "section": "A", "semester": 9, "class_name": "X"}`, "invalid fields: Semester: max"},
		{"negative subject", `{"teacher_id": "T1", "subject_id": -1, "section": "A", "semester": 3, "class_name": "X"}`, "invalid fields: SubjectID: gt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.StartSession(recorder, jsonRequest("POST", "/api/v1/attendance/start-session", tt.body))

			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tt.message)
		})
	}
}

func TestAttendanceHandler_EndSession(t *testing.T) {
	handler, s := newAttendanceHandlerForTest(t)
	session := s.startSession(t)

	recorder := httptest.NewRecorder()
	handler.EndSession(recorder, jsonRequest("POST", "/api/v1/attendance/end-session",
		`{"session_id": "`+session.ID+`"}`))

	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		Session SessionResponse `json:"session"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.Session.Status != "completed" {
		t.Errorf("expected completed session, got %s", result.Session.Status)
	}
	if result.Session.EndTime == nil {
		t.Error("expected end time to be set")
	}
}

func TestAttendanceHandler_EndSession_NotFound(t *testing.T) {
	handler, _ := newAttendanceHandlerForTest(t)

	recorder := httptest.NewRecorder()
	handler.EndSession(recorder, jsonRequest("POST", "/api/v1/attendance/end-session", `{"session_id": "missing"}`))

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestAttendanceHandler_ActiveSession(t *testing.T) {
	handler, s := newAttendanceHandlerForTest(t)

	recorder := httptest.NewRecorder()
	handler.ActiveSession(recorder, httptest.NewRequest("GET", "/api/v1/attendance/active-session?section=A&semester=3", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var empty map[string]any
	parseJSONResponse(t, recorder, &empty)
	if empty["success"] != false {
		t.Errorf("expected success false without a session, got %v", empty["success"])
	}

	session := s.startSession(t)

	recorder = httptest.NewRecorder()
	handler.ActiveSession(recorder, httptest.NewRequest("GET", "/api/v1/attendance/active-session?section=a&semester=III&subject_id=7", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		Success bool             `json:"success"`
		Session SessionResponse  `json:"session"`
		Records []RecordResponse `json:"attendance_records"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.Session.SessionID != session.ID {
		t.Errorf("expected session %s, got %s", session.ID, result.Session.SessionID)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if result.Records[0].StudentName != "Asha Rao" || result.Records[1].StudentName != "Ravi Kumar" {
		t.Errorf("records not ordered by name: %+v", result.Records)
	}
	for _, r := range result.Records {
		if r.Status != "absent" {
			t.Errorf("expected absent, got %s", r.Status)
		}
	}
}

func TestAttendanceHandler_ActiveSession_InvalidParams(t *testing.T) {
	handler, _ := newAttendanceHandlerForTest(t)

	for _, query := range []string{"semester=3", "section=A&semester=9", "section=A&semester=3&subject_id=x"} {
		recorder := httptest.NewRecorder()
		handler.ActiveSession(recorder, httptest.NewRequest("GET", "/api/v1/attendance/active-session?"+query, nil))
		assertStatusCode(t, recorder, http.StatusBadRequest)
	}
}

func TestAttendanceHandler_MarkPresentAndAbsent(t *testing.T) {
	handler, s := newAttendanceHandlerForTest(t)
	session := s.startSession(t)

	recorder := httptest.NewRecorder()
	handler.MarkPresent(recorder, jsonRequest("POST", "/api/v1/attendance/mark-present",
		`{"session_id": "`+session.ID+`", "enrollment_number": "S001", "confidence": 0.92}`))

	assertStatusCode(t, recorder, http.StatusOK)
	var marked struct {
		Attendance RecordResponse `json:"attendance"`
	}
	parseJSONResponse(t, recorder, &marked)
	if marked.Attendance.Status != "present" {
		t.Errorf("expected present, got %s", marked.Attendance.Status)
	}
	if marked.Attendance.MarkedBy != "manual" {
		t.Errorf("expected manual marker by default, got %s", marked.Attendance.MarkedBy)
	}
	if marked.Attendance.ArrivalTime == nil || marked.Attendance.Confidence == nil {
		t.Error("expected arrival time and confidence")
	}

	recorder = httptest.NewRecorder()
	handler.MarkAbsent(recorder, jsonRequest("POST", "/api/v1/attendance/mark-absent",
		`{"session_id": "`+session.ID+`", "enrollment_number": "S001"}`))

	assertStatusCode(t, recorder, http.StatusOK)
	var reset struct {
		Attendance RecordResponse `json:"attendance"`
	}
	parseJSONResponse(t, recorder, &reset)
	if reset.Attendance.Status != "absent" || reset.Attendance.MarkedBy != "teacher_override" {
		t.Errorf("unexpected record after override: %+v", reset.Attendance)
	}
	if reset.Attendance.ArrivalTime != nil {
		t.Error("expected arrival time to be cleared")
	}
}

func TestAttendanceHandler_MarkPresent_Errors(t *testing.T) {
	handler, s := newAttendanceHandlerForTest(t)
	session := s.startSession(t)

	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"unknown identity", `{"session_id": "` + session.ID + `", "enrollment_number": "S999"}`, http.StatusNotFound},
		{"unknown session", `{"session_id": "nope", "enrollment_number": "S001"}`, http.StatusNotFound},
		{"bad marker", `{"session_id": "` + session.ID + `", "enrollment_number": "S001", "marked_by": "robot"}`, http.StatusBadRequest},
		{"confidence above one", `{"session_id": "` + session.ID + `", "enrollment_number": "S001", "confidence": 1.5}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.MarkPresent(recorder, jsonRequest("POST", "/api/v1/attendance/mark-present", tt.body))
			assertStatusCode(t, recorder, tt.expected)
		})
	}
}

func TestAttendanceHandler_SessionRecords(t *testing.T) {
	handler, s := newAttendanceHandlerForTest(t)
	session := s.startSession(t)

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/attendance/session/"+session.ID, nil),
		map[string]string{"sessionId": session.ID})
	recorder := httptest.NewRecorder()
	handler.SessionRecords(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		Count   int              `json:"count"`
		Records []RecordResponse `json:"records"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.Count != 2 || len(result.Records) != 2 {
		t.Errorf("expected 2 records, got %d", result.Count)
	}

	req = requestWithChiParams(httptest.NewRequest("GET", "/api/v1/attendance/session/missing", nil),
		map[string]string{"sessionId": "missing"})
	recorder = httptest.NewRecorder()
	handler.SessionRecords(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestAttendanceHandler_RecognizeAndMark(t *testing.T) {
	handler, s := newAttendanceHandlerForTest(t)
	s.startSession(t)
	s.detector.AddImage("capture", ashaFace)

	req := multipartRequest(t, "/api/v1/attendance/recognize-and-mark",
		map[string]string{"section": "A", "semester": "3"},
		map[string][]string{"file": {"capture"}})
	recorder := httptest.NewRecorder()
	handler.RecognizeAndMark(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result RecognitionResponse
	parseJSONResponse(t, recorder, &result)
	if !result.Success {
		t.Errorf("expected success, got message %q", result.Message)
	}
	if result.Recognition.Identity != "S001" || !result.Recognition.Matched {
		t.Errorf("unexpected recognition %+v", result.Recognition)
	}
	if result.Attendance == nil || result.Attendance.Status != "present" {
		t.Errorf("expected present record, got %+v", result.Attendance)
	}
}

func TestAttendanceHandler_RecognizeAndMark_UnknownFace(t *testing.T) {
	handler, s := newAttendanceHandlerForTest(t)
	s.startSession(t)
	s.detector.AddImage("capture", stranger)

	req := multipartRequest(t, "/api/v1/attendance/recognize-and-mark",
		map[string]string{"section": "A", "semester": "3"},
		map[string][]string{"file": {"capture"}})
	recorder := httptest.NewRecorder()
	handler.RecognizeAndMark(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result RecognitionResponse
	parseJSONResponse(t, recorder, &result)
	if result.Success || result.Recognition.Matched {
		t.Errorf("expected unknown face, got %+v", result)
	}
	if result.Attendance != nil {
		t.Error("expected no attendance record for an unknown face")
	}
}

func TestAttendanceHandler_RecognizeAndMark_DimensionMismatch(t *testing.T) {
	handler, s := newAttendanceHandlerForTest(t)
	s.startSession(t)
	s.detector.AddImage("capture", []float32{0, 0, 1, 0})

	req := multipartRequest(t, "/api/v1/attendance/recognize-and-mark",
		map[string]string{"section": "A", "semester": "3"},
		map[string][]string{"file": {"capture"}})
	recorder := httptest.NewRecorder()
	handler.RecognizeAndMark(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result RecognitionResponse
	parseJSONResponse(t, recorder, &result)
	if result.Success || result.Recognition.Matched || result.Recognition.Role != "Unknown" {
		t.Errorf("expected unknown face, got %+v", result)
	}
	if result.Recognition.Distance != nil {
		t.Errorf("expected no distance, got %v", *result.Recognition.Distance)
	}
}

func TestAttendanceHandler_RecognizeAndMark_NoGallery(t *testing.T) {
	handler, s := newAttendanceHandlerForTest(t)
	session := s.startSession(t)
	delete(s.loader, "A_3")
	s.detector.AddImage("capture", ashaFace)

	req := multipartRequest(t, "/api/v1/attendance/recognize-and-mark",
		map[string]string{"section": "A", "semester": "3"},
		map[string][]string{"file": {"capture"}})
	recorder := httptest.NewRecorder()
	handler.RecognizeAndMark(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result RecognitionResponse
	parseJSONResponse(t, recorder, &result)
	if result.Success || result.Recognition.Name != "Unknown" {
		t.Errorf("expected unknown outcome, got %+v", result)
	}
	if result.Message != "Model not trained for this class" {
		t.Errorf("unexpected message %q", result.Message)
	}

	records, err := s.sessions.Records(req.Context(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if r.Status != "absent" {
			t.Errorf("expected %s to stay absent, got %s", r.Identity, r.Status)
		}
	}
}

func TestAttendanceHandler_RecognizeAndMark_Errors(t *testing.T) {
	handler, _ := newAttendanceHandlerForTest(t)

	// No active session
	req := multipartRequest(t, "/api/v1/attendance/recognize-and-mark",
		map[string]string{"section": "A", "semester": "3"},
		map[string][]string{"file": {"capture"}})
	recorder := httptest.NewRecorder()
	handler.RecognizeAndMark(recorder, req)
	assertStatusCode(t, recorder, http.StatusConflict)

	// Missing image
	req = multipartRequest(t, "/api/v1/attendance/recognize-and-mark",
		map[string]string{"section": "A", "semester": "3"}, nil)
	recorder = httptest.NewRecorder()
	handler.RecognizeAndMark(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "no image provided")

	// Not a multipart request
	recorder = httptest.NewRecorder()
	handler.RecognizeAndMark(recorder, jsonRequest("POST", "/api/v1/attendance/recognize-and-mark", `{}`))
	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestAttendanceHandler_RecognizeMultipleAndMark(t *testing.T) {
	handler, s := newAttendanceHandlerForTest(t)
	session := s.startSession(t)
	s.detector.AddImage("group", ashaFace, raviFace, stranger)

	req := multipartRequest(t, "/api/v1/attendance/recognize-multiple-and-mark",
		map[string]string{"section": "A", "semester": "3"},
		map[string][]string{"file": {"group"}})
	recorder := httptest.NewRecorder()
	handler.RecognizeMultipleAndMark(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result MultiRecognitionResponse
	parseJSONResponse(t, recorder, &result)
	if result.FacesDetected != 3 || len(result.Results) != 3 {
		t.Errorf("expected 3 faces, got %d", result.FacesDetected)
	}
	if len(result.MarkedStudents) != 2 {
		t.Errorf("expected 2 marked students, got %+v", result.MarkedStudents)
	}

	records, err := s.sessions.Records(req.Context(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if r.Status != "present" {
			t.Errorf("expected %s present, got %s", r.Identity, r.Status)
		}
	}
}
