package npdata

// MainRow renders p in the main file's column layout. Parsing the result
// with the main schema yields a Provider equal to p, minus codes that were
// unrecognised on the way in.
func (p *Provider) MainRow() []string {
	l := MainLayout
	row := make([]string, MainSchema().Len())

	row[l.NPI] = string(p.NPI)
	row[l.EntityType] = p.EntityType.Code()
	row[l.ReplacementNPI] = p.ReplacementNPI
	row[l.EIN] = p.EIN

	row[l.OrgName] = p.Organization.LegalBusinessName
	row[l.OtherOrgName] = p.Organization.OtherName
	row[l.OtherOrgNameType] = p.Organization.OtherNameType.Code()

	putName(row, p.Name, l.Prefix, l.FirstName, l.MiddleName, l.LastName, l.Suffix, l.Credential)
	putName(row, p.OtherName, l.OtherPrefix, l.OtherFirstName, l.OtherMiddleName, l.OtherLastName, l.OtherSuffix, l.OtherCredential)
	row[l.OtherLastNameType] = p.OtherLastNameTypeCode.Code()

	putAddress(row, p.MailingAddress, l.Mailing)
	putAddress(row, p.PracticeAddress, l.Practice)

	row[l.EnumerationDate] = p.EnumerationDate.NPPES()
	row[l.LastUpdateDate] = p.LastUpdateDate.NPPES()
	row[l.DeactivationReason] = p.DeactivationReason.Code()
	row[l.DeactivationDate] = p.DeactivationDate.NPPES()
	row[l.ReactivationDate] = p.ReactivationDate.NPPES()
	row[l.Sex] = p.Sex.Code()
	row[l.CertificationDate] = p.CertificationDate.NPPES()

	if ao := p.AuthorizedOfficial; ao != nil {
		putName(row, ao.Name, l.AOPrefix, l.AOFirst, l.AOMiddle, l.AOLast, l.AOSuffix, l.AOCredential)
		row[l.AOTitle] = ao.Title
		row[l.AOPhone] = ao.Phone
	}

	for i, t := range p.TaxonomyCodes {
		if i >= TaxonomySlots {
			break
		}
		slot := &l.Taxonomy[i]
		row[slot.code] = t.Code
		row[slot.license] = t.LicenseNumber
		row[slot.licenseState] = string(t.LicenseState)
		row[slot.primarySwitch] = t.PrimarySwitch.Code()
		row[slot.group] = t.TaxonomyGroup
	}
	for j, id := range p.OtherIdentifiers {
		if j >= OtherIdentifierSlots {
			break
		}
		slot := &l.OtherIDs[j]
		row[slot.identifier] = id.Identifier
		row[slot.typeCode] = id.TypeCode
		row[slot.state] = string(id.State)
		row[slot.issuer] = id.Issuer.Code()
	}

	row[l.SoleProprietor] = p.SoleProprietor.Code()
	row[l.OrganizationSubpart] = p.OrganizationSubpart.Code()
	row[l.ParentLBN] = p.ParentOrganizationLBN
	row[l.ParentTIN] = p.ParentOrganizationTIN
	return row
}

func putName(row []string, n Name, prefix, first, middle, last, suffix, credential int) {
	row[prefix] = n.Prefix.Code()
	row[first] = n.First
	row[middle] = n.Middle
	row[last] = n.Last
	row[suffix] = n.Suffix.Code()
	row[credential] = n.Credential
}

func putAddress(row []string, a Address, c addressColumns) {
	row[c.line1] = a.Line1
	row[c.line2] = a.Line2
	row[c.city] = a.City
	row[c.state] = string(a.State)
	row[c.postal] = a.PostalCode
	row[c.country] = string(a.Country)
	row[c.phone] = a.Phone
	row[c.fax] = a.Fax
}
