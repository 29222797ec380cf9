package main

import "context"

// addUser creates a teacher account; students are enrolled by teachers through
// the web app.
func (cli *commandLine) addUser(name, email, pwd string) error {
	if err := cli.usrSvc.CheckEmailUniqueness(email); err != nil {
		return err
	}
	_, err := cli.usrSvc.CreateTeacher(context.Background(), name, email, pwd)
	return err
}
