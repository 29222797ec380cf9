// Package testutil holds fixture helpers shared by test packages.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/edulab/lectura/core/activity"
	"github.com/edulab/lectura/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role, grade string,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		Grade:     grade,
		AvatarURL: user.DefaultAvatarURL,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func CreateActivity(
	t *testing.T,
	repo activity.Repository,
	teacherID, title string,
	questions ...activity.Question,
) activity.Activity {
	t.Helper()

	tstamp := time.Now().UTC()
	act := activity.Activity{
		Title:      title,
		Difficulty: activity.DifficultyEasy,
		ImageURL:   activity.DefaultImageURL,
		TeacherID:  teacherID,
		Questions:  questions,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	act, err := repo.CreateActivity(context.Background(), act)
	if err != nil {
		t.Fatalf("CreateActivity(): %v", err)
	}
	return act
}
