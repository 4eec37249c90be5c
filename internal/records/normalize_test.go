package records

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanonicalGrade(t *testing.T) {
	cases := map[string]string{
		"Gr. 3":    "Grade 3",
		"GRADE 10": "Grade 10",
		"7":        "Grade 7",
		"Jr.kG":    "Jr.KG",
		"SR.KG":    "Sr.KG",
		"nursery":  "Nursery",
		"Alumni":   "Alumni",
		"":         "",
	}
	for in, want := range cases {
		require.Equal(t, want, CanonicalGrade(in), in)
	}
}

func TestCanonicalSubjectAndGender(t *testing.T) {
	require.Equal(t, "Marathi", CanonicalSubject("MAR"))
	require.Equal(t, "Math", CanonicalSubject(" maths "))
	require.Equal(t, "Drawing", CanonicalSubject("Drawing"))
	require.Equal(t, "M", CanonicalGender("male"))
	require.Equal(t, "F", CanonicalGender("f"))
	require.Equal(t, "X", CanonicalGender("X"))
}

func TestCanonicalMonth(t *testing.T) {
	require.Equal(t, "June", CanonicalMonth("jun"))
	require.Equal(t, "September", CanonicalMonth("9"))
	require.Equal(t, "December", CanonicalMonth("DECEMBER"))
	require.Equal(t, "Ma", CanonicalMonth("Ma"))
}

func TestAssessmentValue(t *testing.T) {
	a := Assessment{
		StudentID: "s1", School: "A", Grade: "Gr. 2", Subject: "eng",
		Date: time.Date(2024, time.July, 3, 0, 0, 0, 0, time.UTC),
	}.Normalized()
	require.Equal(t, "Grade 2", a.Value(Grade))
	require.Equal(t, "English", a.Value(Subject))
	require.Equal(t, "July", a.Value(Month))
	require.Equal(t, "s1", a.Value(Student))

	d, ok := ParseDimension(" School ")
	require.True(t, ok)
	require.Equal(t, School, d)
	_, ok = ParseDimension("teacher")
	require.False(t, ok)
}
