package interaction

import "sync"

func dd(a, b string, sev Severity, desc, ref string) DrugDrugRule {
	return DrugDrugRule{MedicationAName: a, MedicationBName: b, Severity: sev, Description: desc, Reference: ref}
}

func cond(med, code, name string, sev Severity, desc string) ConditionRule {
	return ConditionRule{MedicationName: med, ConditionCode: code, ConditionName: name, Severity: sev, Description: desc}
}

func lab(med, code, flag string, sev Severity, desc string) LabRule {
	return LabRule{MedicationName: med, LabCode: code, AbnormalFlag: flag, Severity: sev, Description: desc}
}

// BuiltinDocument is the rule pack shipped with the binary. Condition codes
// are ICD-10-CM, lab codes are LOINC.
func BuiltinDocument() *Document {
	return &Document{
		DrugDrug: []DrugDrugRule{
			dd("Warfarin", "Aspirin", SeveritySevere, "Additive anticoagulant and antiplatelet effect; major bleeding risk", "Lexicomp"),
			dd("Warfarin", "Ibuprofen", SeveritySevere, "NSAID raises bleeding risk and may raise INR", "Lexicomp"),
			dd("Warfarin", "Fluconazole", SeveritySevere, "CYP2C9 inhibition markedly raises INR", "FDA label"),
			dd("Simvastatin", "Clarithromycin", SeverityContraindicated, "CYP3A4 inhibition; rhabdomyolysis", "FDA label"),
			dd("Sildenafil", "Nitroglycerin", SeverityContraindicated, "Profound hypotension", "FDA label"),
			dd("Phenelzine", "Fluoxetine", SeverityContraindicated, "Serotonin syndrome", "FDA label"),
			dd("Tramadol", "Sertraline", SeveritySevere, "Serotonin syndrome and lowered seizure threshold", "Lexicomp"),
			dd("Methotrexate", "Trimethoprim", SeveritySevere, "Additive antifolate effect; pancytopenia", "Lexicomp"),
			dd("Digoxin", "Amiodarone", SeveritySevere, "Raises digoxin levels; halve digoxin dose", "FDA label"),
			dd("Lisinopril", "Spironolactone", SeverityModerate, "Hyperkalemia; monitor potassium", "Lexicomp"),
			dd("Clopidogrel", "Omeprazole", SeverityModerate, "Reduced antiplatelet activation via CYP2C19", "FDA label"),
			dd("Ciprofloxacin", "Theophylline", SeverityModerate, "Raises theophylline levels", "Lexicomp"),
			dd("Levothyroxine", "Calcium carbonate", SeverityMild, "Reduced absorption; separate by 4 hours", "Lexicomp"),
		},
		AllergyClasses: []AllergyClass{
			{Name: "Penicillins", Members: []string{"Amoxicillin", "Ampicillin", "Penicillin V", "Penicillin G", "Piperacillin", "Dicloxacillin", "Nafcillin", "Oxacillin"}},
			{Name: "Cephalosporins", Members: []string{"Cephalexin", "Cefazolin", "Cefuroxime", "Ceftriaxone", "Cefepime"}},
			{Name: "Sulfonamides", Members: []string{"Sulfamethoxazole", "Sulfasalazine", "Sulfadiazine"}},
			{Name: "NSAIDs", Members: []string{"Aspirin", "Ibuprofen", "Naproxen", "Diclofenac", "Ketorolac", "Celecoxib"}},
			{Name: "Opioids", Members: []string{"Morphine", "Codeine", "Hydromorphone", "Oxycodone", "Tramadol"}},
			{Name: "Fluoroquinolones", Members: []string{"Ciprofloxacin", "Levofloxacin", "Moxifloxacin"}},
			{Name: "Macrolides", Members: []string{"Azithromycin", "Clarithromycin", "Erythromycin"}},
			{Name: "Tetracyclines", Members: []string{"Doxycycline", "Minocycline", "Tetracycline"}},
		},
		ConditionRules: []ConditionRule{
			cond("Metformin", "N18.5", "Chronic kidney disease, stage 5", SeveritySevere, "Lactic acidosis risk; contraindicated below eGFR 30"),
			cond("Ibuprofen", "N18.4", "Chronic kidney disease, stage 4", SeveritySevere, "NSAIDs worsen renal function"),
			cond("Ibuprofen", "K25.9", "Gastric ulcer", SeveritySevere, "GI bleeding risk"),
			cond("Warfarin", "K92.2", "Gastrointestinal hemorrhage", SeveritySevere, "Active bleeding"),
			cond("Propranolol", "J45.909", "Asthma", SeveritySevere, "Non-selective beta blockade may precipitate bronchospasm"),
			cond("Metoprolol", "J45.909", "Asthma", SeverityModerate, "Cardioselective; use lowest effective dose"),
			cond("Pseudoephedrine", "I10", "Essential hypertension", SeverityModerate, "Raises blood pressure"),
			cond("Prednisone", "E11.9", "Type 2 diabetes mellitus", SeverityModerate, "Hyperglycemia; monitor glucose"),
			cond("Levofloxacin", "G70.00", "Myasthenia gravis", SeveritySevere, "May exacerbate muscle weakness"),
		},
		LabRules: []LabRule{
			lab("Metformin", "2160-0", "H", SeveritySevere, "Elevated creatinine; reassess renal function"),
			lab("Potassium chloride", "2823-3", "H", SeveritySevere, "Hyperkalemia"),
			lab("Spironolactone", "2823-3", "H", SeveritySevere, "Hyperkalemia"),
			lab("Lisinopril", "2823-3", "H", SeverityModerate, "Hyperkalemia; monitor"),
			lab("Digoxin", "2823-3", "L", SeveritySevere, "Hypokalemia potentiates digoxin toxicity"),
			lab("Warfarin", "34714-6", "H", SeveritySevere, "Supratherapeutic INR"),
			lab("Heparin", "777-3", "L", SeveritySevere, "Thrombocytopenia; consider HIT"),
			lab("Enoxaparin", "777-3", "L", SeveritySevere, "Thrombocytopenia"),
			lab("Methotrexate", "1742-6", "H", SeverityModerate, "Elevated ALT; hepatotoxicity"),
			lab("Acetaminophen", "1742-6", "H", SeverityModerate, "Elevated ALT; limit daily dose"),
		},
	}
}

var (
	defaultOnce  sync.Once
	defaultRules *RuleSet
)

// DefaultRuleSet returns the builtin rules. The value is shared and must be
// treated as read-only, like every RuleSet.
func DefaultRuleSet() *RuleSet {
	defaultOnce.Do(func() {
		rs, err := NewRuleSet(BuiltinDocument())
		if err != nil {
			panic("builtin rule pack is invalid: " + err.Error())
		}
		defaultRules = rs
	})
	return defaultRules
}
