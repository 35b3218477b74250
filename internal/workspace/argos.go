package workspace

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// ErrConfigMismatch is returned when the .argos file lacks an element the
// drivers need to edit.
var ErrConfigMismatch = errors.New("argos configuration mismatch")

// XMLDeclaration is written verbatim in front of every rewritten .argos file.
const XMLDeclaration = "<?xml version='1.0' ?>\n"

const (
	paramsPath     = ".//params"
	experimentPath = ".//experiment"
	fsmConfigAttr  = "fsm-config"
	randomSeedAttr = "random_seed"
)

// LoadArgos parses an .argos configuration file.
func LoadArgos(path string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("failed to parse argos file %s: %w", path, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("argos file %s has no root element: %w", path, ErrConfigMismatch)
	}
	return doc, nil
}

// SetFSMConfig sets the fsm-config attribute on every <params> element.
func SetFSMConfig(doc *etree.Document, fsm string) error {
	elems := doc.FindElements(paramsPath)
	if len(elems) == 0 {
		return fmt.Errorf("no <params> element: %w", ErrConfigMismatch)
	}
	for _, e := range elems {
		e.CreateAttr(fsmConfigAttr, fsm)
	}
	return nil
}

// SetRandomSeed sets the random_seed attribute on every <experiment> element.
func SetRandomSeed(doc *etree.Document, seed int) error {
	elems := doc.FindElements(experimentPath)
	if len(elems) == 0 {
		return fmt.Errorf("no <experiment> element: %w", ErrConfigMismatch)
	}
	for _, e := range elems {
		e.CreateAttr(randomSeedAttr, strconv.Itoa(seed))
	}
	return nil
}

// SerializeArgos renders the root element behind the fixed declaration.
// Any declaration or top-level content outside the root is dropped.
func SerializeArgos(doc *etree.Document) (string, error) {
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("document has no root element: %w", ErrConfigMismatch)
	}

	out := etree.NewDocument()
	out.WriteSettings = doc.WriteSettings
	out.SetRoot(root.Copy())

	body, err := out.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to serialize argos file: %w", err)
	}
	return XMLDeclaration + strings.TrimLeft(body, " \t\r\n"), nil
}

// EditArgos loads path, applies the FSM and seed edits and writes it back.
func EditArgos(path, fsm string, seed int) error {
	doc, err := LoadArgos(path)
	if err != nil {
		return err
	}
	if err := SetFSMConfig(doc, fsm); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := SetRandomSeed(doc, seed); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	content, err := SerializeArgos(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write argos file: %w", err)
	}
	return nil
}
