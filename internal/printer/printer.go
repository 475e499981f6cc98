package printer

import (
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/notify"
)

// Printer knows how to print task information in different formats.
type Printer interface {
	PrintTaskList(tasks []model.Task) error
	PrintTaskStatus(task model.Task) error
	PrintEvent(env notify.Envelope) error
	PrintMessage(msg string) error
}

var (
	_ Printer = &TablePrinter{}
	_ Printer = &JSONPrinter{}
)
