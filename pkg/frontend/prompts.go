package frontend

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/ligandx/pkg/ligand"
)

func propertyTemplate() string {
	fields := make([]string, 0, len(ligand.PropertyTemplate))
	for _, k := range ligand.PropertyTemplate {
		fields = append(fields, fmt.Sprintf("'%s': ''", k))
	}
	return "{" + strings.Join(fields, ", ") + "}"
}

func fewShotSystem() string {
	return "I will extract ligand data from the table and create a JSON format. " +
		"The JSON should follow: LIGAND_TEMPLATE = {'ligand_name': {PROPERTY_TEMPLATE}}. " +
		"PROPERTY_TEMPLATE = " + propertyTemplate() + ". " +
		"Use only the keys from PROPERTY_TEMPLATE and do not modify their names. " +
		"The output must contain only JSON."
}

func fineTuningSystem() string {
	return "this task is to take a string as input and convert it to json format. " +
		"I want to extract the ligand properties below. [" + strings.Join(ligand.PropertyTemplate, ", ") + "]. " +
		"If a property is missing in the input, omit that key. " +
		"The output must be a JSON object with only the present keys."
}

func zeroShotInstruction() string {
	return "I'm going to convert the information in the table representer into JSON format.\n" +
		" LIGAND_TEMPLATE = {'ligand_name': {PROPERTY_TEMPLATE}}\n" +
		" PROPERTY_TEMPLATE = " + propertyTemplate() + "\n" +
		" Table representer is in below \n\n "
}

const (
	zeroShotLigands = "Show the ligands present in the table representer as a Python list. " +
		"Answer must be ONLY python list. Not like '''python ''' Be very very very strict. " +
		"Other sentences or explanation is not allowed.\n"

	zeroShotTemplate = "Create a LIGAND_TEMPLATE filling in the properties of %s  from the table representer, " +
		"strictly adhering to the following 3 rules:\n\n" +
		" Rule 1: Use only the keys in PROPERTY_TEMPLATE.\n" +
		" Rule 2: Set all values of the keys in PROPERTY_TEMPLATE to be \" \". DO NOT INSERT ANY VALUE. BE VERY STRICT.\n" +
		" Rule 3: Answer must be ONLY json format. Only display the JSON (like string not ```json). " +
		"Other sentences or explanation is not allowed."

	zeroShotProperty = "In PROPERTY_TEMPLATE, maintain all keys, and fill in values that exist in the table representer. " +
		"If there are more than two \"values\" for the same performance, fill in each \"value\" with the property template and make it into a list. " +
		"If there is unit information, never create or modify additional keys, but reflect the units in the value."

	zeroShotTitleCaption = "Modify the previous version of LIGAND_TEMPLATE based solely on the title and caption. " +
		"Never modify the keys. Fill in values only for keys that appear in the title or caption."

	zeroShotDelete = "Remove keys with no values from previous version of LIGAND_TEMPLATE."
)
