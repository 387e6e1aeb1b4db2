package main

import (
	"testing"

	"github.com/musher-dev/ember/internal/doctor"
	"github.com/musher-dev/ember/internal/testutil"
)

func TestDoctorOutput_AllPass_Golden(t *testing.T) {
	results := []doctor.Result{
		{Name: "Terminal", Status: doctor.StatusPass, Message: "Interactive (xterm-256color)"},
		{Name: "Configuration", Status: doctor.StatusPass, Message: "Valid (defaults)"},
		{Name: "History", Status: doctor.StatusPass, Message: "/home/dev/.local/state/ember/history"},
		{Name: "Shell", Status: doctor.StatusPass, Message: "/bin/sh"},
	}

	out, buf := testWriter()
	renderDoctor(out, results)

	testutil.AssertGolden(t, buf.String(), "doctor_all_pass.golden")
}

func TestDoctorOutput_Mixed_Golden(t *testing.T) {
	results := []doctor.Result{
		{Name: "Terminal", Status: doctor.StatusPass, Message: "Interactive (xterm-256color)"},
		{Name: "Configuration", Status: doctor.StatusFail, Message: "Invalid (/home/dev/.config/ember/config.yaml)", Detail: `unsupported repl.prompt_style "fancy"`},
		{Name: "History", Status: doctor.StatusWarn, Message: "Disabled", Detail: "Set history.enabled to true to record submissions"},
		{Name: "Shell", Status: doctor.StatusPass, Message: "/bin/sh"},
	}

	out, buf := testWriter()
	renderDoctor(out, results)

	testutil.AssertGolden(t, buf.String(), "doctor_mixed.golden")
}
