package enrollment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/blob"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

func images(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{byte(i + 1)}
	}
	return out
}

func newRegistrar() (*Registrar, *mock.MockStore, *blob.MemStore) {
	store := mock.NewMockStore()
	blobs := blob.NewMemStore()
	r := NewRegistrar(store, blobs, 5, nil)
	r.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	return r, store, blobs
}

func TestRegisterStudent(t *testing.T) {
	r, store, blobs := newRegistrar()
	ctx := context.Background()

	reg, err := r.RegisterStudent(ctx, StudentRequest{
		Name: "  Asha  Rao ", Enrollment: "21CS001", Section: "a", Semester: "iii", Images: images(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, reg.ImagesUploaded)
	assert.Equal(t, "enrollment/21CS001", reg.Folder)

	p, err := store.GetPerson(ctx, "21CS001")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Asha Rao", p.Name)
	assert.Equal(t, "A", p.Section)
	assert.Equal(t, 3, p.Semester)
	assert.Equal(t, "21CS001@student.edu", p.Email)
	assert.Equal(t, database.RoleStudent, p.Role)

	refs, err := store.ListEnrollmentImages(ctx, []string{"21CS001"})
	require.NoError(t, err)
	require.Len(t, refs, 5)
	assert.Equal(t, "enrollment/21CS001/image_4", refs[4].Path)
	assert.Equal(t, 5, blobs.Len())

	data, err := blobs.Download(ctx, ImageBucket, refs[2].Path)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, data)
}

func TestRegisterStudent_ReRegistrationReplacesImages(t *testing.T) {
	r, store, _ := newRegistrar()
	ctx := context.Background()
	req := StudentRequest{Name: "Asha", Enrollment: "21CS001", Section: "A", Semester: "3", Email: "asha@example.com", Images: images(6)}

	_, err := r.RegisterStudent(ctx, req)
	require.NoError(t, err)
	req.Section = "B"
	_, err = r.RegisterStudent(ctx, req)
	require.NoError(t, err)

	p, err := store.GetPerson(ctx, "21CS001")
	require.NoError(t, err)
	assert.Equal(t, "B", p.Section)
	assert.Equal(t, "asha@example.com", p.Email)

	refs, err := store.ListEnrollmentImages(ctx, []string{"21CS001"})
	require.NoError(t, err)
	assert.Len(t, refs, 6)
}

func TestRegisterStudent_Validation(t *testing.T) {
	r, store, blobs := newRegistrar()
	valid := StudentRequest{Name: "Asha", Enrollment: "21CS001", Section: "A", Semester: "3", Images: images(5)}

	tests := []struct {
		name   string
		modify func(*StudentRequest)
	}{
		{"too few images", func(s *StudentRequest) { s.Images = images(4) }},
		{"empty image", func(s *StudentRequest) { s.Images[2] = nil }},
		{"bad semester", func(s *StudentRequest) { s.Semester = "IX" }},
		{"missing section", func(s *StudentRequest) { s.Section = " " }},
		{"missing name", func(s *StudentRequest) { s.Name = "" }},
		{"bad enrollment", func(s *StudentRequest) { s.Enrollment = "../x" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			req.Images = images(5)
			tt.modify(&req)
			_, err := r.RegisterStudent(context.Background(), req)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	assert.Zero(t, blobs.Len(), "nothing uploaded for invalid requests")
	people, err := store.ListPeople(context.Background(), database.PersonFilter{})
	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestRegisterTeacher(t *testing.T) {
	r, store, _ := newRegistrar()
	reg, err := r.RegisterTeacher(context.Background(), TeacherRequest{
		Name: "Prof. Iyer", TeacherID: "T001", Department: "CSE", Images: images(5),
	})
	require.NoError(t, err)
	assert.Equal(t, database.RoleTeacher, reg.Person.Role)

	p, err := store.GetPerson(context.Background(), "T001")
	require.NoError(t, err)
	assert.Equal(t, "CSE", p.Department)
	assert.Empty(t, p.Section)
}

func TestRegisterGuest(t *testing.T) {
	r, store, _ := newRegistrar()
	tokens := []int{123, 123, 456}
	r.token = func() int {
		n := tokens[0]
		tokens = tokens[1:]
		return n
	}
	ctx := context.Background()

	first, err := r.RegisterGuest(ctx, GuestRequest{Name: "Visitor", DurationDays: 7, Section: "a", Semester: "3", Images: images(5)})
	require.NoError(t, err)
	assert.Equal(t, "guest_20250310_123", first.Person.Identity)
	assert.True(t, database.IsGuestIdentity(first.Person.Identity))
	assert.Equal(t, "A", first.Person.Section)

	second, err := r.RegisterGuest(ctx, GuestRequest{Name: "Other", DurationDays: 1, Images: images(5)})
	require.NoError(t, err)
	assert.Equal(t, "guest_20250310_456", second.Person.Identity, "taken token is skipped")
	assert.Zero(t, second.Person.Semester)

	p, err := store.GetPerson(ctx, "guest_20250310_456")
	require.NoError(t, err)
	assert.Equal(t, 1, p.DurationDays)
}

func TestRegisterGuest_Validation(t *testing.T) {
	r, _, _ := newRegistrar()
	ctx := context.Background()

	_, err := r.RegisterGuest(ctx, GuestRequest{Name: "V", DurationDays: 0, Images: images(5)})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = r.RegisterGuest(ctx, GuestRequest{Name: "V", DurationDays: 1, Section: "A", Images: images(5)})
	assert.ErrorIs(t, err, apperr.ErrValidation, "section without semester")

	_, err = r.RegisterGuest(ctx, GuestRequest{Name: "V", DurationDays: 1, Images: images(2)})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
